package enforcement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"veto/internal/audit"
	auditmodels "veto/internal/audit/models"
	"veto/internal/pointer/cache"
	pointermodels "veto/internal/pointer/models"
	"veto/internal/platform/metrics"
	"veto/internal/receipt"
	receiptmodels "veto/internal/receipt/models"
	"veto/internal/storage"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/platform/sentinel"
	"veto/pkg/requestcontext"
)

// Resolve outcomes, used as the metrics label.
const (
	OutcomeResolved = "resolved"
	OutcomeDenied   = "denied"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// ReceiptAppender extends a pointer's receipt chain inside a transaction.
type ReceiptAppender interface {
	Append(ctx context.Context, receipts storage.ReceiptStore, p *pointermodels.Pointer, op receiptmodels.Operation, at time.Time, fields ...receipt.Field) (*receiptmodels.Receipt, error)
}

// AuditRecorder appends audit events inside a transaction.
type AuditRecorder interface {
	Record(ctx context.Context, store storage.AuditStore, e *auditmodels.Event) error
}

// Resolution is a successful resolve. Receipt is nil when resolve receipts
// are disabled.
type Resolution struct {
	Pointer *pointermodels.Pointer
	Data    *pointermodels.DataObject
	Receipt *receiptmodels.Receipt
}

// Guard resolves pointers.
type Guard struct {
	tx              storage.Tx
	receipts        ReceiptAppender
	audit           AuditRecorder
	tombstones      cache.Tombstones
	resolveReceipts bool
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
}

// Option configures the Guard.
type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithTombstones lets Resolve deny known-orphaned pointers from cache.
func WithTombstones(t cache.Tombstones) Option {
	return func(g *Guard) {
		g.tombstones = t
	}
}

// WithResolveReceipts toggles the signed receipt for each successful resolve.
func WithResolveReceipts(enabled bool) Option {
	return func(g *Guard) {
		g.resolveReceipts = enabled
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) {
		g.tracer = t
	}
}

func New(tx storage.Tx, receipts ReceiptAppender, recorder AuditRecorder, opts ...Option) *Guard {
	g := &Guard{
		tx:              tx,
		receipts:        receipts,
		audit:           recorder,
		resolveReceipts: true,
		tracer:          otel.Tracer("veto/enforcement"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve returns the data behind pointerID if, and only if, the pointer is
// active at the moment its row lock is taken. Denials and unknown pointers
// are audited before the error is returned.
func (g *Guard) Resolve(ctx context.Context, pointerID id.PointerID) (*Resolution, error) {
	start := time.Now()
	if g.metrics != nil {
		defer g.metrics.ObserveResolve(start)
	}
	ctx, span := g.tracer.Start(ctx, "enforcement.Resolve",
		trace.WithAttributes(attribute.String("pointer_id", pointerID.String())),
	)
	defer span.End()

	res, outcome, err := g.resolve(ctx, pointerID)
	span.SetAttributes(attribute.String("outcome", outcome))
	if g.metrics != nil {
		g.metrics.IncrementResolution(outcome)
	}
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		if g.logger != nil {
			g.logger.ErrorContext(ctx, "resolve failed",
				"pointer_id", pointerID.String(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	return res, err
}

func (g *Guard) resolve(ctx context.Context, pointerID id.PointerID) (*Resolution, string, error) {
	if denied := g.checkTombstone(ctx, pointerID); denied != nil {
		if err := g.recordCachedDenial(ctx, denied); err != nil {
			return nil, OutcomeError, err
		}
		return nil, OutcomeDenied, denied
	}

	now := requestcontext.Now(ctx)
	var (
		res      *Resolution
		denied   *DeniedError
		notFound bool
	)
	err := g.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		p, err := st.Pointers.FindForUpdate(ctx, pointerID)
		if errors.Is(err, sentinel.ErrNotFound) {
			notFound = true
			e := &auditmodels.Event{Type: auditmodels.EventPointerResolveNotFound, PointerID: &pointerID}
			return g.audit.Record(ctx, st.Audit, e)
		}
		if err != nil {
			return storage.Translate(err, "pointer")
		}

		if err := Check(p); err != nil {
			if !errors.As(err, &denied) {
				return err
			}
			e := audit.PointerEvent(auditmodels.EventPointerResolveDenied, p, nil, map[string]any{"reason": denied.Reason})
			return g.audit.Record(ctx, st.Audit, e)
		}

		data, err := st.Data.FindByID(ctx, p.DataID)
		if err != nil {
			return storage.Translate(err, "data object")
		}

		var r *receiptmodels.Receipt
		if g.resolveReceipts {
			r, err = g.receipts.Append(ctx, st.Receipts, p, receiptmodels.OperationResolve, now)
			if err != nil {
				return err
			}
		}
		if err := g.audit.Record(ctx, st.Audit, audit.PointerEvent(auditmodels.EventPointerResolved, p, r, nil)); err != nil {
			return err
		}
		res = &Resolution{Pointer: p, Data: data, Receipt: r}
		return nil
	})

	switch {
	case err != nil:
		return nil, OutcomeError, err
	case notFound:
		return nil, OutcomeNotFound, dErrors.New(dErrors.CodeNotFound, "pointer not found")
	case denied != nil:
		g.rememberOrphan(ctx, denied)
		return nil, OutcomeDenied, denied
	case res == nil:
		// Unreachable unless a runner returns nil without running fn.
		return nil, OutcomeError, dErrors.New(dErrors.CodeInternal, "resolve produced no result")
	default:
		return res, OutcomeResolved, nil
	}
}

// checkTombstone returns a denial when the cache knows pointerID is
// orphaned. Cache errors fall through to the store.
func (g *Guard) checkTombstone(ctx context.Context, pointerID id.PointerID) *DeniedError {
	if g.tombstones == nil {
		return nil
	}
	at, ok, err := g.tombstones.OrphanedAt(ctx, pointerID)
	if err != nil {
		if g.logger != nil {
			g.logger.WarnContext(ctx, "orphan tombstone lookup failed",
				"pointer_id", pointerID.String(),
				"error", err,
			)
		}
		return nil
	}
	if !ok {
		return nil
	}
	if g.metrics != nil {
		g.metrics.IncrementOrphanCacheHits()
	}
	return &DeniedError{PointerID: pointerID, Reason: ReasonPointerOrphaned, OrphanedAt: &at}
}

func (g *Guard) recordCachedDenial(ctx context.Context, denied *DeniedError) error {
	pointerID := denied.PointerID
	return g.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		e := &auditmodels.Event{
			Type:      auditmodels.EventPointerResolveDenied,
			PointerID: &pointerID,
			Payload:   map[string]any{"reason": denied.Reason, "source": "tombstone"},
		}
		return g.audit.Record(ctx, st.Audit, e)
	})
}

// rememberOrphan backfills the tombstone cache after a store-level denial.
func (g *Guard) rememberOrphan(ctx context.Context, denied *DeniedError) {
	if g.tombstones == nil || denied.OrphanedAt == nil {
		return
	}
	if err := g.tombstones.MarkOrphaned(ctx, denied.PointerID, *denied.OrphanedAt); err != nil && g.logger != nil {
		g.logger.WarnContext(ctx, "orphan tombstone write failed",
			"pointer_id", denied.PointerID.String(),
			"error", err,
		)
	}
}
