package models

import (
	"time"

	dErrors "veto/pkg/domain-errors"
)

// StatusName is the persisted label of a pointer status.
type StatusName string

const (
	StatusActive   StatusName = "active"
	StatusOrphaned StatusName = "orphaned"
)

// Status is the closed set of pointer states. Only Active and Orphaned
// implement it.
type Status interface {
	Name() StatusName
	sealed()
}

// Active pointers resolve to their data.
type Active struct{}

// Orphaned pointers never resolve again.
type Orphaned struct {
	At     time.Time
	Reason string
}

func (Active) Name() StatusName   { return StatusActive }
func (Orphaned) Name() StatusName { return StatusOrphaned }
func (Active) sealed()            {}
func (Orphaned) sealed()          {}

// StatusFromColumns rebuilds a Status from its persisted columns. Rows whose
// orphaned_at disagrees with the status label are rejected.
func StatusFromColumns(name string, orphanedAt *time.Time, reason string) (Status, error) {
	switch StatusName(name) {
	case StatusActive:
		if orphanedAt != nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "active pointer has orphaned_at set")
		}
		return Active{}, nil
	case StatusOrphaned:
		if orphanedAt == nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "orphaned pointer missing orphaned_at")
		}
		return Orphaned{At: *orphanedAt, Reason: reason}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown pointer status: "+name)
	}
}
