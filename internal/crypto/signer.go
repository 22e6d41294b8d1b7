package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"
)

// Algorithm tags a signature with the scheme that produced it.
type Algorithm string

const (
	AlgorithmEd25519 Algorithm = "ed25519"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown signature algorithm")
	ErrUnknownKey       = errors.New("unknown verification key")
	ErrBadSignature     = errors.New("signature does not verify")
)

// Signer produces signatures over digests. Implementations hold an immutable
// keypair and are safe for concurrent use.
type Signer interface {
	Algorithm() Algorithm
	KeyID() string
	Sign(digest Digest) ([]byte, error)
}

// Verifier checks signatures for one algorithm.
type Verifier interface {
	Algorithm() Algorithm
	Verify(keyID string, digest Digest, signature []byte) error
}

// Ed25519Signer signs with a fixed Ed25519 private key.
type Ed25519Signer struct {
	key   ed25519.PrivateKey
	keyID string
}

// NewEd25519Signer wraps a private key. The key is copied.
func NewEd25519Signer(key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	cp := make(ed25519.PrivateKey, len(key))
	copy(cp, key)
	return &Ed25519Signer{
		key:   cp,
		keyID: KeyID(cp.Public().(ed25519.PublicKey)),
	}, nil
}

func (s *Ed25519Signer) Algorithm() Algorithm { return AlgorithmEd25519 }

func (s *Ed25519Signer) KeyID() string { return s.keyID }

func (s *Ed25519Signer) Sign(digest Digest) ([]byte, error) {
	if len(digest) == 0 {
		return nil, errors.New("refusing to sign empty digest")
	}
	return ed25519.Sign(s.key, digest), nil
}

// PublicKey returns the verification half of the keypair.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Seed returns the 32-byte seed, base64 encoded, for operator export.
func (s *Ed25519Signer) Seed() string {
	return base64.StdEncoding.EncodeToString(s.key.Seed())
}

// Ed25519Verifier verifies against a set of known public keys.
type Ed25519Verifier struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

func NewEd25519Verifier(keys ...ed25519.PublicKey) *Ed25519Verifier {
	v := &Ed25519Verifier{keys: make(map[string]ed25519.PublicKey, len(keys))}
	for _, k := range keys {
		v.AddKey(k)
	}
	return v
}

// AddKey trusts an additional public key, addressed by its KeyID.
func (v *Ed25519Verifier) AddKey(key ed25519.PublicKey) string {
	id := KeyID(key)
	v.mu.Lock()
	v.keys[id] = key
	v.mu.Unlock()
	return id
}

func (v *Ed25519Verifier) Algorithm() Algorithm { return AlgorithmEd25519 }

func (v *Ed25519Verifier) Verify(keyID string, digest Digest, signature []byte) error {
	v.mu.RLock()
	key, ok := v.keys[keyID]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}
	if !ed25519.Verify(key, digest, signature) {
		return ErrBadSignature
	}
	return nil
}

// KeyID fingerprints a public key: the first 16 bytes of its SHA3-256, hex.
func KeyID(pub []byte) string {
	sum := sha3.Sum256(pub)
	return hex.EncodeToString(sum[:16])
}

// GenerateEd25519Signer creates a signer with a fresh random key.
func GenerateEd25519Signer() (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return NewEd25519Signer(priv)
}

// ParseEd25519Signer decodes a base64 key. Both the 32-byte seed and the
// 64-byte expanded private key forms are accepted.
func ParseEd25519Signer(encoded string) (*Ed25519Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return NewEd25519Signer(ed25519.NewKeyFromSeed(raw))
	case ed25519.PrivateKeySize:
		return NewEd25519Signer(ed25519.PrivateKey(raw))
	default:
		return nil, fmt.Errorf("signing key must decode to %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// LoadOrGenerateEd25519Signer parses encoded when set and otherwise generates
// an ephemeral key. generated reports which path was taken.
func LoadOrGenerateEd25519Signer(encoded string) (signer *Ed25519Signer, generated bool, err error) {
	if encoded == "" {
		signer, err = GenerateEd25519Signer()
		return signer, true, err
	}
	signer, err = ParseEd25519Signer(encoded)
	return signer, false, err
}
