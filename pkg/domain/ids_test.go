package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veto/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePointerID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParsePointerID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParsePointerID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParsePointerID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, PointerID(validUUID), id)
		assert.Equal(t, validUUID.String(), id.String())
	})
}

// TestParseID_TrustBoundary validates that parsing rejects hostile input at API
// entry points.
func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE pointers;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePointerID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errOrg := ParseOrgID(validUUID)
		_, errData := ParseDataID(validUUID)
		_, errPointer := ParsePointerID(validUUID)
		_, errReceipt := ParseReceiptID(validUUID)
		_, errEvent := ParseEventID(validUUID)

		require.NoError(t, errOrg)
		require.NoError(t, errData)
		require.NoError(t, errPointer)
		require.NoError(t, errReceipt)
		require.NoError(t, errEvent)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errOrg := ParseOrgID(input)
			_, errData := ParseDataID(input)
			_, errPointer := ParsePointerID(input)
			_, errReceipt := ParseReceiptID(input)
			_, errEvent := ParseEventID(input)

			require.Error(t, errOrg)
			require.Error(t, errData)
			require.Error(t, errPointer)
			require.Error(t, errReceipt)
			require.Error(t, errEvent)
		})
	}
}

func TestNewIDs_AreNeverNil(t *testing.T) {
	assert.False(t, NewOrgID().IsNil())
	assert.False(t, NewPointerID().IsNil())
	assert.True(t, PointerID{}.IsNil())
}
