package models

import (
	"strings"
	"time"

	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
)

// DefaultOrphanReason is recorded when an orphan request carries no reason.
const DefaultOrphanReason = "user_consent_revoked"

const maxOrganizationNameLength = 128

// Organization is the tenancy boundary that owns data objects and pointers.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - Organizations are created administratively and never deleted here
type Organization struct {
	ID        id.OrgID       `json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewOrganization(orgID id.OrgID, name string, now time.Time) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name cannot be empty")
	}
	if len(name) > maxOrganizationNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name must be 128 characters or less")
	}
	return &Organization{ID: orgID, Name: name, CreatedAt: now}, nil
}

// DataObject is an immutable record whose content is identified by ContentHash.
// Once stored it is never updated or deleted; orphaning a pointer leaves it intact.
type DataObject struct {
	ID          id.DataID      `json:"id"`
	OrgID       id.OrgID       `json:"org_id"`
	SubjectID   string         `json:"subject_id"`
	ContentHash string         `json:"content_hash"`
	Payload     []byte         `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewDataObject(dataID id.DataID, orgID id.OrgID, subjectID, contentHash string, payload []byte, now time.Time) (*DataObject, error) {
	if contentHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "content_hash cannot be empty")
	}
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject_id cannot be empty")
	}
	var cp []byte
	if len(payload) > 0 {
		cp = append([]byte(nil), payload...)
	}
	return &DataObject{
		ID:          dataID,
		OrgID:       orgID,
		SubjectID:   subjectID,
		ContentHash: contentHash,
		Payload:     cp,
		CreatedAt:   now,
	}, nil
}

// Pointer is a revocable reference to a DataObject.
//
// Invariants:
//   - Status is Active or Orphaned; OrphanedAt exists iff Orphaned
//   - Transition Active -> Orphaned only; Orphaned is terminal
//   - DataID never changes after construction
type Pointer struct {
	ID        id.PointerID   `json:"id"`
	OrgID     id.OrgID       `json:"org_id"`
	DataID    id.DataID      `json:"data_id"`
	SubjectID string         `json:"subject_id"`
	Status    Status         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewPointer(pointerID id.PointerID, data *DataObject, now time.Time) (*Pointer, error) {
	if data == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pointer requires a data object")
	}
	return &Pointer{
		ID:        pointerID,
		OrgID:     data.OrgID,
		DataID:    data.ID,
		SubjectID: data.SubjectID,
		Status:    Active{},
		CreatedAt: now,
	}, nil
}

func (p *Pointer) IsActive() bool {
	_, ok := p.Status.(Active)
	return ok
}

// OrphanedAt returns the orphaning time, or nil while the pointer is active.
func (p *Pointer) OrphanedAt() *time.Time {
	if o, ok := p.Status.(Orphaned); ok {
		at := o.At
		return &at
	}
	return nil
}

// CanOrphan checks if the pointer can transition to orphaned.
func (p *Pointer) CanOrphan() error {
	if !p.IsActive() {
		return dErrors.New(dErrors.CodeAlreadyOrphaned, "pointer is already orphaned")
	}
	return nil
}

// ApplyOrphan transitions the pointer to orphaned. Call CanOrphan first.
func (p *Pointer) ApplyOrphan(now time.Time, reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultOrphanReason
	}
	p.Status = Orphaned{At: now, Reason: reason}
}

// Orphan validates and applies the transition in one call.
func (p *Pointer) Orphan(now time.Time, reason string) error {
	if err := p.CanOrphan(); err != nil {
		return err
	}
	p.ApplyOrphan(now, reason)
	return nil
}
