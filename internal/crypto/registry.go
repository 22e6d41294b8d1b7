package crypto

import (
	"fmt"
	"sync"
)

// Registry dispatches verification to the Verifier registered for a
// receipt's algorithm tag.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[Algorithm]Verifier
}

func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[Algorithm]Verifier)}
	for _, v := range verifiers {
		r.Register(v)
	}
	return r
}

// Register replaces any verifier previously registered for v's algorithm.
func (r *Registry) Register(v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[v.Algorithm()] = v
}

func (r *Registry) Verify(alg Algorithm, keyID string, digest Digest, signature []byte) error {
	r.mu.RLock()
	v, ok := r.verifiers[alg]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}
	return v.Verify(keyID, digest, signature)
}

// RegistryFor builds a registry that trusts the signer's own public key.
func RegistryFor(s *Ed25519Signer) *Registry {
	return NewRegistry(NewEd25519Verifier(s.PublicKey()))
}
