package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA3512(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "a69f73cca23a9ac5c8b567dc185a756e97c982164fe25859e0d1dcc1475c80a615b2123af1f5f94c11e3e9402c3ac558f500199d95b6d3e301758586281dcd26"},
		{"abc", "b751850b1a57168a5693cd924b6b096e08f621827444f70d884f5d0240d2712e10e116e9192af3c91a7ec57647e3934057340b4cf408d5a56592f8274eec53f0"},
	}
	for _, tt := range tests {
		got := SHA3512{}.Sum([]byte(tt.input)).Hex()
		assert.Equal(t, tt.expected, got)
		assert.Len(t, got, 128)
	}
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := DefaultHasher.Sum([]byte("payload"))
	parsed, err := ParseDigest(d.Hex())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("not-hex")
	require.Error(t, err)
}

func TestEd25519SignVerify(t *testing.T) {
	signer, err := GenerateEd25519Signer()
	require.NoError(t, err)
	registry := RegistryFor(signer)

	digest := DefaultHasher.Sum([]byte(`{"operation":"create"}`))
	sig, err := signer.Sign(digest)
	require.NoError(t, err)

	t.Run("valid signature verifies", func(t *testing.T) {
		require.NoError(t, registry.Verify(signer.Algorithm(), signer.KeyID(), digest, sig))
	})

	t.Run("altered digest fails", func(t *testing.T) {
		other := DefaultHasher.Sum([]byte(`{"operation":"orphan"}`))
		err := registry.Verify(signer.Algorithm(), signer.KeyID(), other, sig)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("unknown key", func(t *testing.T) {
		err := registry.Verify(signer.Algorithm(), "deadbeef", digest, sig)
		assert.ErrorIs(t, err, ErrUnknownKey)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		err := registry.Verify("dilithium3", signer.KeyID(), digest, sig)
		assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	})
}

func TestSignRejectsEmptyDigest(t *testing.T) {
	signer, err := GenerateEd25519Signer()
	require.NoError(t, err)
	_, err = signer.Sign(nil)
	require.Error(t, err)
}

func TestParseEd25519Signer(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	fromSeed, err := ParseEd25519Signer(base64.StdEncoding.EncodeToString(seed))
	require.NoError(t, err)

	expanded := ed25519.NewKeyFromSeed(seed)
	fromExpanded, err := ParseEd25519Signer(base64.StdEncoding.EncodeToString(expanded))
	require.NoError(t, err)

	assert.Equal(t, fromSeed.KeyID(), fromExpanded.KeyID())
	assert.Equal(t, base64.StdEncoding.EncodeToString(seed), fromSeed.Seed())

	_, err = ParseEd25519Signer(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
	_, err = ParseEd25519Signer("%%%")
	require.Error(t, err)
}

func TestLoadOrGenerate(t *testing.T) {
	s, generated, err := LoadOrGenerateEd25519Signer("")
	require.NoError(t, err)
	assert.True(t, generated)

	again, generated, err := LoadOrGenerateEd25519Signer(s.Seed())
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, s.KeyID(), again.KeyID())
}

func TestKeyIDStable(t *testing.T) {
	s, err := GenerateEd25519Signer()
	require.NoError(t, err)
	assert.Equal(t, KeyID(s.PublicKey()), s.KeyID())
	assert.Len(t, s.KeyID(), 32)
}
