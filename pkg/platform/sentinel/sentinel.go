package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped) so
// the registry, guard and audit services can translate them into domain errors.
//
//   - ErrNotFound: row does not exist
//   - ErrConflict: a uniqueness constraint rejected the write (chain fork, duplicate org)
//   - ErrInvalidState: persisted row violates a model invariant
//   - ErrUnavailable: backing service could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
