package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFile points Load at a .env path that does not exist.
func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DefaultOrgID, cfg.Tenant.DefaultOrgID.String())
	assert.True(t, cfg.ResolveReceipts)
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VETO_ADDR", ":9090")
	t.Setenv("VETO_RESOLVE_RECEIPTS", "false")
	t.Setenv("VETO_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("VETO_TX_TIMEOUT", "2s")
	t.Setenv("VETO_LOG_FORMAT", "TEXT")

	cfg, err := Load(t.TempDir(), noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.ResolveReceipts)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_ConfigFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "addr: \":7070\"\ncors_allowed_origins:\n  - https://app.example.org\n  - https://admin.example.org\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("VETO_DEFAULT_ORG_NAME=Dotenv Org\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VETO_DEFAULT_ORG_NAME") })

	cfg, err := Load(dir, envFile)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.org", "https://admin.example.org"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "Dotenv Org", cfg.Tenant.DefaultOrgName)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"bad org id":      {"VETO_DEFAULT_ORG_ID", "not-a-uuid"},
		"zero tx timeout": {"VETO_TX_TIMEOUT", "0s"},
		"bad log format":  {"VETO_LOG_FORMAT", "xml"},
		"blank org name":  {"VETO_DEFAULT_ORG_NAME", "   "},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load(t.TempDir(), noEnvFile(t))
			assert.Error(t, err)
		})
	}
}
