// Package audit records pointer events and serves the compliance queries
// (receipts for a pointer, a subject's audit trail, chain verification).
//
// Recording is fail-closed: Record runs inside the caller's transaction, so
// an audit write that fails rolls back the operation it describes.
package audit

import (
	"context"
	"log/slog"
	"maps"

	"veto/internal/audit/models"
	pointermodels "veto/internal/pointer/models"
	receiptmodels "veto/internal/receipt/models"
	"veto/internal/storage"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/requestcontext"
)

// Recorder stamps events with request metadata and appends them.
type Recorder struct {
	logger *slog.Logger
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends e to store, filling ID, timestamp, actor and request
// metadata from ctx where e leaves them empty. The caller must fail its
// operation when Record returns an error.
func (r *Recorder) Record(ctx context.Context, store storage.AuditStore, e *models.Event) error {
	if e == nil || e.Type == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "audit event requires a type")
	}
	if e.ID.IsNil() {
		e.ID = id.NewEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.ActorID == "" {
		e.ActorID = requestcontext.ActorID(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.ClientIP == "" {
		e.ClientIP = requestcontext.ClientIP(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = requestcontext.UserAgent(ctx)
	}

	if err := store.Append(ctx, e); err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "CRITICAL: audit event persistence failed",
				"event_type", string(e.Type),
				"category", string(e.Type.Category()),
				"pointer_id", pointerIDString(e.PointerID),
				"request_id", e.RequestID,
				"error", err,
			)
		}
		return storage.Translate(err, "audit event")
	}
	return nil
}

// PointerEvent builds an event about p. receipt may be nil; payload is copied.
func PointerEvent(t models.EventType, p *pointermodels.Pointer, receipt *receiptmodels.Receipt, payload map[string]any) *models.Event {
	e := &models.Event{Type: t, Payload: make(map[string]any, len(payload)+1)}
	maps.Copy(e.Payload, payload)
	if p != nil {
		orgID, pointerID := p.OrgID, p.ID
		e.OrgID = &orgID
		e.PointerID = &pointerID
		e.Payload["subject_id"] = p.SubjectID
	}
	if receipt != nil {
		receiptID := receipt.ID
		e.ReceiptID = &receiptID
	}
	return e
}

func pointerIDString(p *id.PointerID) string {
	if p == nil {
		return ""
	}
	return p.String()
}
