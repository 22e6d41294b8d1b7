package audit

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"veto/internal/audit/models"
	pointermodels "veto/internal/pointer/models"
	receiptmodels "veto/internal/receipt/models"
	"veto/internal/storage"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
)

const (
	trailBatchSize   = 200
	trailConcurrency = 4
)

// ChainVerifier re-verifies a pointer's receipt chain.
type ChainVerifier interface {
	VerifyChain(ctx context.Context, receipts storage.ReceiptStore, pointerID id.PointerID) (*receiptmodels.Verification, error)
}

// Query is the read-only compliance surface. It holds no cursor state.
type Query struct {
	db     storage.Database
	chain  ChainVerifier
	logger *slog.Logger
}

// QueryOption configures the Query.
type QueryOption func(*Query)

func WithQueryLogger(logger *slog.Logger) QueryOption {
	return func(q *Query) {
		q.logger = logger
	}
}

func NewQuery(db storage.Database, chain ChainVerifier, opts ...QueryOption) *Query {
	q := &Query{db: db, chain: chain}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ReceiptsFor returns the pointer's receipts in seq order.
func (q *Query) ReceiptsFor(ctx context.Context, pointerID id.PointerID) ([]*receiptmodels.Receipt, error) {
	stores := q.db.Stores()
	if _, err := stores.Pointers.FindByID(ctx, pointerID); err != nil {
		return nil, storage.Translate(err, "pointer")
	}
	receipts, err := stores.Receipts.ListByPointer(ctx, pointerID)
	if err != nil {
		q.logFailure(ctx, "receipts_for", pointerID.String(), err)
		return nil, storage.Translate(err, "receipt")
	}
	return receipts, nil
}

// AuditTrailFor summarises a subject's pointers within an organization and
// returns the chronological events recorded against them. An unknown subject
// yields an empty trail.
func (q *Query) AuditTrailFor(ctx context.Context, orgID id.OrgID, subjectID string) (*models.Trail, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	stores := q.db.Stores()
	pointers, err := stores.Pointers.ListBySubject(ctx, orgID, subjectID)
	if err != nil {
		q.logFailure(ctx, "audit_trail_for", "", err)
		return nil, storage.Translate(err, "pointer")
	}

	trail := &models.Trail{OrgID: orgID, SubjectID: subjectID, Events: []*models.Event{}}
	if len(pointers) == 0 {
		return trail, nil
	}

	trail.Summary = summarize(pointers)
	ids := make([]id.PointerID, len(pointers))
	for i, p := range pointers {
		ids[i] = p.ID
	}

	events, err := q.eventsFor(ctx, stores.Audit, ids)
	if err != nil {
		q.logFailure(ctx, "audit_trail_for", "", err)
		return nil, storage.Translate(err, "audit event")
	}
	trail.Events = events
	return trail, nil
}

// eventsFor loads events in batches of trailBatchSize pointer IDs, fetching
// batches concurrently, and returns them merged in chronological order.
func (q *Query) eventsFor(ctx context.Context, store storage.AuditStore, ids []id.PointerID) ([]*models.Event, error) {
	var batches [][]id.PointerID
	for start := 0; start < len(ids); start += trailBatchSize {
		end := min(start+trailBatchSize, len(ids))
		batches = append(batches, ids[start:end])
	}

	results := make([][]*models.Event, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trailConcurrency)
	for i, batch := range batches {
		g.Go(func() error {
			events, err := store.ListByPointers(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]*models.Event, 0)
	for _, events := range results {
		merged = append(merged, events...)
	}
	slices.SortStableFunc(merged, func(a, b *models.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return merged, nil
}

func summarize(pointers []*pointermodels.Pointer) models.SubjectSummary {
	s := models.SubjectSummary{Total: len(pointers)}
	for _, p := range pointers {
		if p.IsActive() {
			s.Active++
		} else {
			s.Orphaned++
		}
	}
	return s
}

// VerifyChain re-verifies the pointer's receipt chain.
func (q *Query) VerifyChain(ctx context.Context, pointerID id.PointerID) (*receiptmodels.Verification, error) {
	if q.chain == nil {
		return nil, errors.New("audit query has no chain verifier")
	}
	stores := q.db.Stores()
	if _, err := stores.Pointers.FindByID(ctx, pointerID); err != nil {
		return nil, storage.Translate(err, "pointer")
	}
	v, err := q.chain.VerifyChain(ctx, stores.Receipts, pointerID)
	if err != nil {
		q.logFailure(ctx, "verify_chain", pointerID.String(), err)
		return nil, err
	}
	if !v.Valid && q.logger != nil {
		q.logger.WarnContext(ctx, "receipt chain failed verification",
			"pointer_id", pointerID.String(),
			"reason", v.Reason,
		)
	}
	return v, nil
}

func (q *Query) logFailure(ctx context.Context, op, pointerID string, err error) {
	if q.logger == nil {
		return
	}
	q.logger.ErrorContext(ctx, "audit query failed",
		"operation", op,
		"pointer_id", pointerID,
		"error", err,
	)
}
