// Package enforcement is the only path from a pointer to its data. It fails
// closed: any pointer that is not provably active is denied, and any storage
// error surfaces as an error rather than a resolution.
package enforcement

import (
	"fmt"
	"time"

	pointermodels "veto/internal/pointer/models"
	"veto/pkg/canonical"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
)

const (
	ReasonPointerOrphaned = "pointer_orphaned"
	ReasonPointerMissing  = "pointer_missing"
	ReasonUnknownStatus   = "pointer_status_unknown"
)

// DeniedError reports a refused resolve.
type DeniedError struct {
	PointerID  id.PointerID
	Reason     string
	OrphanedAt *time.Time
}

func (e *DeniedError) Error() string {
	if e.OrphanedAt != nil {
		return fmt.Sprintf("access denied: %s since %s", e.Reason, canonical.FormatTime(*e.OrphanedAt))
	}
	return "access denied: " + e.Reason
}

func (e *DeniedError) ErrorCode() dErrors.Code { return dErrors.CodeDenied }

// ErrorDetails exposes orphaned_at in the HTTP error envelope.
func (e *DeniedError) ErrorDetails() map[string]any {
	details := map[string]any{"reason": e.Reason}
	if e.OrphanedAt != nil {
		details["orphaned_at"] = e.OrphanedAt.UTC()
	}
	return details
}

// Check is the pure access decision: nil iff p is active.
func Check(p *pointermodels.Pointer) error {
	if p == nil {
		return &DeniedError{Reason: ReasonPointerMissing}
	}
	switch st := p.Status.(type) {
	case pointermodels.Active:
		return nil
	case pointermodels.Orphaned:
		at := st.At
		return &DeniedError{PointerID: p.ID, Reason: ReasonPointerOrphaned, OrphanedAt: &at}
	default:
		return &DeniedError{PointerID: p.ID, Reason: ReasonUnknownStatus}
	}
}
