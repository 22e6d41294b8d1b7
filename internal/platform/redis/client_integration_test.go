//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"veto/internal/platform/config"
	"veto/pkg/testutil/containers"
)

func TestNew_ConnectsAndReportsHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)

	client, err := New(context.Background(), config.RedisConfig{URL: rc.Addr, PoolSize: 4})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Health(context.Background()))
}
