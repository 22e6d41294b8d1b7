// Package registry owns the pointer lifecycle: create, get and orphan. Every
// transition commits together with its signed receipt and audit event.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"veto/internal/audit"
	auditmodels "veto/internal/audit/models"
	"veto/internal/pointer/cache"
	"veto/internal/pointer/models"
	"veto/internal/platform/metrics"
	"veto/internal/receipt"
	receiptmodels "veto/internal/receipt/models"
	"veto/internal/receipt/stream"
	"veto/internal/storage"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/platform/sentinel"
	"veto/pkg/requestcontext"
)

// ReceiptAppender extends a pointer's receipt chain inside a transaction.
type ReceiptAppender interface {
	Append(ctx context.Context, receipts storage.ReceiptStore, p *models.Pointer, op receiptmodels.Operation, at time.Time, fields ...receipt.Field) (*receiptmodels.Receipt, error)
}

// AuditRecorder appends audit events inside a transaction.
type AuditRecorder interface {
	Record(ctx context.Context, store storage.AuditStore, e *auditmodels.Event) error
}

// CreateRequest describes a new pointer. A nil OrgID selects the default
// organization.
type CreateRequest struct {
	OrgID       *id.OrgID
	SubjectID   string
	ContentHash string
	Payload     []byte
	Metadata    map[string]any
}

// Normalize trims the string fields.
func (r *CreateRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.ContentHash = strings.TrimSpace(r.ContentHash)
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if r.ContentHash == "" {
		return dErrors.New(dErrors.CodeValidation, "content_hash is required")
	}
	if r.OrgID != nil && r.OrgID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "org_id must not be the nil UUID")
	}
	return nil
}

type CreateResult struct {
	Pointer *models.Pointer
	Data    *models.DataObject
	Receipt *receiptmodels.Receipt
	// DataReused is true when an existing object with the same content hash
	// was linked instead of storing the payload again.
	DataReused bool
}

type OrphanResult struct {
	Pointer *models.Pointer
	Receipt *receiptmodels.Receipt
}

// Registry is the pointer state machine owner.
type Registry struct {
	db           storage.Database
	receipts     ReceiptAppender
	audit        AuditRecorder
	defaultOrgID id.OrgID
	tombstones   cache.Tombstones
	publisher    stream.Publisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithDefaultOrg sets the organization used when CreateRequest.OrgID is nil.
func WithDefaultOrg(orgID id.OrgID) Option {
	return func(r *Registry) {
		r.defaultOrgID = orgID
	}
}

// WithTombstones writes a tombstone after each committed orphan.
func WithTombstones(t cache.Tombstones) Option {
	return func(r *Registry) {
		r.tombstones = t
	}
}

// WithPublisher publishes each committed receipt.
func WithPublisher(p stream.Publisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

func New(db storage.Database, receipts ReceiptAppender, recorder AuditRecorder, opts ...Option) *Registry {
	r := &Registry{
		db:        db,
		receipts:  receipts,
		audit:     recorder,
		publisher: stream.Nop{},
		tracer:    otel.Tracer("veto/registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureOrganization creates the organization unless it already exists.
func (r *Registry) EnsureOrganization(ctx context.Context, orgID id.OrgID, name string) (*models.Organization, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "organization id is required")
	}
	org, err := models.NewOrganization(orgID, name, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}

	stores := r.db.Stores()
	existing, err := stores.Orgs.FindByID(ctx, orgID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, storage.Translate(err, "organization")
	}

	if err := stores.Orgs.Create(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Created concurrently; return the winner.
			existing, findErr := stores.Orgs.FindByID(ctx, orgID)
			if findErr != nil {
				return nil, storage.Translate(findErr, "organization")
			}
			return existing, nil
		}
		return nil, storage.Translate(err, "organization")
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, "organization created",
			"org_id", orgID.String(),
			"name", org.Name,
		)
	}
	return org, nil
}

// Create registers a new active pointer to the data identified by the
// request's content hash.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	start := time.Now()
	if r.metrics != nil {
		defer r.metrics.ObserveCreate(start)
	}
	ctx, span := r.tracer.Start(ctx, "registry.Create")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	orgID := r.defaultOrgID
	if req.OrgID != nil {
		orgID = *req.OrgID
	}
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "org_id is required")
	}
	span.SetAttributes(attribute.String("org_id", orgID.String()))

	now := requestcontext.Now(ctx)
	var result *CreateResult
	err := r.db.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		if _, err := st.Orgs.FindByID(ctx, orgID); err != nil {
			return storage.Translate(err, "organization")
		}

		candidate, err := models.NewDataObject(id.NewDataID(), orgID, req.SubjectID, req.ContentHash, req.Payload, now)
		if err != nil {
			return toValidation(err)
		}
		candidate.Metadata = req.Metadata
		data, created, err := st.Data.FindOrCreate(ctx, candidate)
		if err != nil {
			return storage.Translate(err, "data object")
		}

		p, err := models.NewPointer(id.NewPointerID(), data, now)
		if err != nil {
			return toValidation(err)
		}
		// The pointer belongs to the requesting subject even when the data
		// object was first stored for another one.
		p.SubjectID = req.SubjectID
		p.Metadata = req.Metadata
		if err := st.Pointers.Create(ctx, p); err != nil {
			return storage.Translate(err, "pointer")
		}

		rec, err := r.receipts.Append(ctx, st.Receipts, p, receiptmodels.OperationCreate, now,
			receipt.F("data_id", data.ID.String()),
			receipt.F("content_hash", data.ContentHash),
			receipt.F("subject_id", p.SubjectID),
		)
		if err != nil {
			return err
		}

		e := audit.PointerEvent(auditmodels.EventPointerCreated, p, rec, map[string]any{
			"data_id":     data.ID.String(),
			"data_reused": !created,
		})
		if err := r.audit.Record(ctx, st.Audit, e); err != nil {
			return err
		}

		result = &CreateResult{Pointer: p, Data: data, Receipt: rec, DataReused: !created}
		return nil
	})
	if err != nil {
		r.fail(ctx, span, "create", "", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("pointer_id", result.Pointer.ID.String()))
	if r.metrics != nil {
		r.metrics.IncrementPointersCreated()
	}
	r.publish(ctx, result.Receipt)
	return result, nil
}

// Get returns the pointer's current state.
func (r *Registry) Get(ctx context.Context, pointerID id.PointerID) (*models.Pointer, error) {
	p, err := r.db.Stores().Pointers.FindByID(ctx, pointerID)
	if err != nil {
		return nil, storage.Translate(err, "pointer")
	}
	return p, nil
}

// Orphan permanently severs the pointer from its data. A blank reason
// records models.DefaultOrphanReason.
func (r *Registry) Orphan(ctx context.Context, pointerID id.PointerID, reason string) (*OrphanResult, error) {
	start := time.Now()
	if r.metrics != nil {
		defer r.metrics.ObserveOrphan(start)
	}
	ctx, span := r.tracer.Start(ctx, "registry.Orphan",
		trace.WithAttributes(attribute.String("pointer_id", pointerID.String())),
	)
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.DefaultOrphanReason
	}

	now := requestcontext.Now(ctx)
	var (
		result   *OrphanResult
		rejected *models.Pointer
	)
	err := r.db.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		p, err := st.Pointers.FindForUpdate(ctx, pointerID)
		if err != nil {
			return storage.Translate(err, "pointer")
		}
		if err := p.CanOrphan(); err != nil {
			rejected = p
			return err
		}
		p.ApplyOrphan(now, reason)
		if err := st.Pointers.UpdateStatus(ctx, p); err != nil {
			return storage.Translate(err, "pointer")
		}

		rec, err := r.receipts.Append(ctx, st.Receipts, p, receiptmodels.OperationOrphan, now,
			receipt.F("reason", reason),
		)
		if err != nil {
			return err
		}

		e := audit.PointerEvent(auditmodels.EventPointerOrphaned, p, rec, map[string]any{"reason": reason})
		if err := r.audit.Record(ctx, st.Audit, e); err != nil {
			return err
		}
		result = &OrphanResult{Pointer: p, Receipt: rec}
		return nil
	})
	if err != nil {
		if rejected != nil && dErrors.HasCode(err, dErrors.CodeAlreadyOrphaned) {
			r.recordRejectedOrphan(ctx, rejected, reason)
			if r.metrics != nil {
				r.metrics.IncrementOrphanRejected()
			}
			span.SetAttributes(attribute.String("outcome", "already_orphaned"))
			return nil, err
		}
		r.fail(ctx, span, "orphan", pointerID.String(), err)
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.IncrementPointersOrphaned()
	}
	if r.tombstones != nil {
		if err := r.tombstones.MarkOrphaned(ctx, pointerID, now); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "orphan tombstone write failed",
				"pointer_id", pointerID.String(),
				"error", err,
			)
		}
	}
	r.publish(ctx, result.Receipt)
	return result, nil
}

// recordRejectedOrphan audits a repeat orphan attempt in its own transaction;
// the attempt itself already rolled back.
func (r *Registry) recordRejectedOrphan(ctx context.Context, p *models.Pointer, reason string) {
	err := r.db.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		payload := map[string]any{"reason": reason}
		if at := p.OrphanedAt(); at != nil {
			payload["orphaned_at"] = at.UTC().Format(time.RFC3339Nano)
		}
		return r.audit.Record(ctx, st.Audit, audit.PointerEvent(auditmodels.EventPointerOrphanRejected, p, nil, payload))
	})
	if err != nil && r.logger != nil {
		r.logger.ErrorContext(ctx, "failed to audit rejected orphan",
			"pointer_id", p.ID.String(),
			"error", err,
		)
	}
}

func (r *Registry) publish(ctx context.Context, rec *receiptmodels.Receipt) {
	if rec == nil || r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, rec); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "receipt publish failed",
			"receipt_id", rec.ID.String(),
			"pointer_id", rec.PointerID.String(),
			"error", err,
		)
	}
}

func (r *Registry) fail(ctx context.Context, span trace.Span, op, pointerID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	if r.logger == nil {
		return
	}
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeValidation || code == dErrors.CodeNotFound {
		return
	}
	r.logger.ErrorContext(ctx, "pointer "+op+" failed",
		"operation", op,
		"pointer_id", pointerID,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

// toValidation reports constructor invariant failures as validation errors.
func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
