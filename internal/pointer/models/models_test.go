package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
)

func newTestPointer(t *testing.T) *Pointer {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	data, err := NewDataObject(id.NewDataID(), id.NewOrgID(), "user_demo_001", "sha256:abc", []byte("payload"), now)
	require.NoError(t, err)
	p, err := NewPointer(id.NewPointerID(), data, now)
	require.NoError(t, err)
	return p
}

func TestNewOrganization(t *testing.T) {
	now := time.Now()
	org, err := NewOrganization(id.NewOrgID(), "  Acme  ", now)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)

	_, err = NewOrganization(id.NewOrgID(), "   ", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewOrganization(id.NewOrgID(), strings.Repeat("x", 129), now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestNewDataObject(t *testing.T) {
	payload := []byte("secret")
	data, err := NewDataObject(id.NewDataID(), id.NewOrgID(), "subject", "hash", payload, time.Now())
	require.NoError(t, err)

	payload[0] = 'X'
	assert.Equal(t, []byte("secret"), data.Payload, "payload must be copied")

	_, err = NewDataObject(id.NewDataID(), id.NewOrgID(), "subject", "", nil, time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestPointerLifecycle(t *testing.T) {
	t.Run("new pointer is active", func(t *testing.T) {
		p := newTestPointer(t)
		assert.True(t, p.IsActive())
		assert.Nil(t, p.OrphanedAt())
		assert.Equal(t, StatusActive, p.Status.Name())
	})

	t.Run("orphan sets timestamp and reason", func(t *testing.T) {
		p := newTestPointer(t)
		at := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, p.Orphan(at, "gdpr erasure"))

		assert.False(t, p.IsActive())
		require.NotNil(t, p.OrphanedAt())
		assert.Equal(t, at, *p.OrphanedAt())
		assert.Equal(t, Orphaned{At: at, Reason: "gdpr erasure"}, p.Status)
	})

	t.Run("blank reason falls back to default", func(t *testing.T) {
		p := newTestPointer(t)
		require.NoError(t, p.Orphan(time.Now(), "  "))
		assert.Equal(t, DefaultOrphanReason, p.Status.(Orphaned).Reason)
	})

	t.Run("orphaned is terminal", func(t *testing.T) {
		p := newTestPointer(t)
		first := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, p.Orphan(first, ""))

		err := p.Orphan(first.Add(time.Hour), "again")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyOrphaned))
		assert.Equal(t, first, *p.OrphanedAt(), "first orphaning time is kept")
	})
}

func TestStatusFromColumns(t *testing.T) {
	at := time.Now()

	s, err := StatusFromColumns("active", nil, "")
	require.NoError(t, err)
	assert.Equal(t, Active{}, s)

	s, err = StatusFromColumns("orphaned", &at, "r")
	require.NoError(t, err)
	assert.Equal(t, Orphaned{At: at, Reason: "r"}, s)

	_, err = StatusFromColumns("active", &at, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = StatusFromColumns("orphaned", nil, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = StatusFromColumns("deleted", nil, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}
