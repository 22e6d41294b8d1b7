package enforcement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"veto/internal/audit"
	auditmodels "veto/internal/audit/models"
	"veto/internal/crypto"
	"veto/internal/pointer/cache"
	pointermodels "veto/internal/pointer/models"
	"veto/internal/platform/metrics"
	"veto/internal/receipt"
	receiptmodels "veto/internal/receipt/models"
	"veto/internal/storage"
	"veto/internal/storage/memory"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/requestcontext"
)

func TestCheck(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data, err := pointermodels.NewDataObject(id.NewDataID(), id.NewOrgID(), "patient-1", "sha3:abc", nil, now)
	require.NoError(t, err)

	t.Run("active pointer passes", func(t *testing.T) {
		p, err := pointermodels.NewPointer(id.NewPointerID(), data, now)
		require.NoError(t, err)
		assert.NoError(t, Check(p))
	})

	t.Run("orphaned pointer is denied with its orphan time", func(t *testing.T) {
		p, err := pointermodels.NewPointer(id.NewPointerID(), data, now)
		require.NoError(t, err)
		require.NoError(t, p.Orphan(now.Add(time.Hour), ""))

		err = Check(p)
		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, ReasonPointerOrphaned, denied.Reason)
		require.NotNil(t, denied.OrphanedAt)
		assert.True(t, denied.OrphanedAt.Equal(now.Add(time.Hour)))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDenied))
	})

	t.Run("nil pointer is denied", func(t *testing.T) {
		var denied *DeniedError
		require.ErrorAs(t, Check(nil), &denied)
		assert.Equal(t, ReasonPointerMissing, denied.Reason)
	})

	t.Run("unknown status is denied", func(t *testing.T) {
		p, err := pointermodels.NewPointer(id.NewPointerID(), data, now)
		require.NoError(t, err)
		p.Status = nil

		var denied *DeniedError
		require.ErrorAs(t, Check(p), &denied)
		assert.Equal(t, ReasonUnknownStatus, denied.Reason)
	})
}

func TestDeniedErrorDetails(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := &DeniedError{PointerID: id.NewPointerID(), Reason: ReasonPointerOrphaned, OrphanedAt: &at}

	details := err.ErrorDetails()
	assert.Equal(t, ReasonPointerOrphaned, details["reason"])
	assert.Equal(t, at, details["orphaned_at"])
	assert.Contains(t, dErrors.MessageOf(err), "access denied: pointer_orphaned since 2025-06-01T12:00:00")
}

type failingAuditStore struct {
	storage.AuditStore
}

func (failingAuditStore) Append(context.Context, *auditmodels.Event) error {
	return errors.New("audit volume unavailable")
}

// failingAuditRecorder fails every write, as if the audit store were down.
type failingAuditRecorder struct {
	recorder *audit.Recorder
}

func (f failingAuditRecorder) Record(ctx context.Context, _ storage.AuditStore, e *auditmodels.Event) error {
	return f.recorder.Record(ctx, failingAuditStore{}, e)
}

type GuardSuite struct {
	suite.Suite
	ctx        context.Context
	db         *memory.DB
	chain      *receipt.Chain
	recorder   *audit.Recorder
	tombstones *cache.Memory
	metrics    *metrics.Metrics
	guard      *Guard
	org        *pointermodels.Organization
	now        time.Time
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.db = memory.New()
	signer, err := crypto.GenerateEd25519Signer()
	s.Require().NoError(err)
	s.chain = receipt.New(signer, crypto.RegistryFor(signer))
	s.recorder = audit.NewRecorder()
	s.tombstones = cache.NewMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.guard = New(s.db, s.chain, s.recorder,
		WithTombstones(s.tombstones),
		WithMetrics(s.metrics),
	)

	org, err := pointermodels.NewOrganization(id.NewOrgID(), "Acme Health", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Stores().Orgs.Create(s.ctx, org))
	s.org = org
}

func (s *GuardSuite) createPointer(payload string) *pointermodels.Pointer {
	var p *pointermodels.Pointer
	err := s.db.RunInTx(s.ctx, func(ctx context.Context, st storage.Stores) error {
		data, err := pointermodels.NewDataObject(id.NewDataID(), s.org.ID, "patient-1", "sha3:"+payload, []byte(payload), s.now)
		if err != nil {
			return err
		}
		if data, _, err = st.Data.FindOrCreate(ctx, data); err != nil {
			return err
		}
		if p, err = pointermodels.NewPointer(id.NewPointerID(), data, s.now); err != nil {
			return err
		}
		if err := st.Pointers.Create(ctx, p); err != nil {
			return err
		}
		_, err = s.chain.Append(ctx, st.Receipts, p, receiptmodels.OperationCreate, s.now)
		return err
	})
	s.Require().NoError(err)
	return p
}

func (s *GuardSuite) orphan(ctx context.Context, pointerID id.PointerID, at time.Time) {
	err := s.db.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		p, err := st.Pointers.FindForUpdate(ctx, pointerID)
		if err != nil {
			return err
		}
		if err := p.Orphan(at, "consent withdrawn"); err != nil {
			return err
		}
		if err := st.Pointers.UpdateStatus(ctx, p); err != nil {
			return err
		}
		e := audit.PointerEvent(auditmodels.EventPointerOrphaned, p, nil, nil)
		return s.recorder.Record(ctx, st.Audit, e)
	})
	s.Require().NoError(err)
}

func (s *GuardSuite) events(pointerID id.PointerID) []*auditmodels.Event {
	events, err := s.db.Stores().Audit.ListByPointers(s.ctx, []id.PointerID{pointerID})
	s.Require().NoError(err)
	return events
}

func (s *GuardSuite) TestResolveActivePointer() {
	p := s.createPointer("lab-result")

	res, err := s.guard.Resolve(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, res.Pointer.ID)
	s.Equal([]byte("lab-result"), res.Data.Payload)
	s.Require().NotNil(res.Receipt)
	s.Equal(receiptmodels.OperationResolve, res.Receipt.Operation)

	events := s.events(p.ID)
	s.Require().Len(events, 1)
	s.Equal(auditmodels.EventPointerResolved, events[0].Type)
	s.Require().NotNil(events[0].ReceiptID)
	s.Equal(res.Receipt.ID, *events[0].ReceiptID)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Resolutions.WithLabelValues(OutcomeResolved)))
}

func (s *GuardSuite) TestResolveWithoutReceipts() {
	guard := New(s.db, s.chain, s.recorder, WithResolveReceipts(false))
	p := s.createPointer("lab-result")

	res, err := guard.Resolve(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Nil(res.Receipt)

	receipts, err := s.db.Stores().Receipts.ListByPointer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Len(receipts, 1, "only the create receipt")
}

func (s *GuardSuite) TestResolveUnknownPointer() {
	missing := id.NewPointerID()

	res, err := s.guard.Resolve(s.ctx, missing)
	s.Nil(res)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	events := s.events(missing)
	s.Require().Len(events, 1)
	s.Equal(auditmodels.EventPointerResolveNotFound, events[0].Type)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Resolutions.WithLabelValues(OutcomeNotFound)))
}

func (s *GuardSuite) TestResolveOrphanedPointerIsDenied() {
	p := s.createPointer("lab-result")
	orphanedAt := s.now.Add(time.Minute)
	s.orphan(s.ctx, p.ID, orphanedAt)

	res, err := s.guard.Resolve(s.ctx, p.ID)
	s.Nil(res)
	var denied *DeniedError
	s.Require().ErrorAs(err, &denied)
	s.Equal(ReasonPointerOrphaned, denied.Reason)
	s.Require().NotNil(denied.OrphanedAt)
	s.True(denied.OrphanedAt.Equal(orphanedAt))

	events := s.events(p.ID)
	s.Require().Len(events, 2)
	s.Equal(auditmodels.EventPointerResolveDenied, events[1].Type)
	s.Equal(ReasonPointerOrphaned, events[1].Payload["reason"])

	at, ok, err := s.tombstones.OrphanedAt(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(ok, "denial should backfill the tombstone")
	s.True(at.Equal(orphanedAt))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Resolutions.WithLabelValues(OutcomeDenied)))
}

func (s *GuardSuite) TestTombstoneDeniesWithoutStoreLookup() {
	p := s.createPointer("lab-result")
	s.Require().NoError(s.tombstones.MarkOrphaned(s.ctx, p.ID, s.now))

	// The store still says active; the tombstone wins because orphaning is terminal.
	_, err := s.guard.Resolve(s.ctx, p.ID)
	var denied *DeniedError
	s.Require().ErrorAs(err, &denied)

	events := s.events(p.ID)
	s.Require().Len(events, 1)
	s.Equal(auditmodels.EventPointerResolveDenied, events[0].Type)
	s.Equal("tombstone", events[0].Payload["source"])
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OrphanCacheHits))
}

func (s *GuardSuite) TestExpiredTombstoneFallsThroughToStore() {
	clockNow := s.now
	tombstones := cache.NewMemory(
		cache.WithMemoryTTL(time.Hour),
		cache.WithMemoryClock(func() time.Time { return clockNow }),
	)
	guard := New(s.db, s.chain, s.recorder, WithTombstones(tombstones), WithMetrics(s.metrics))

	p := s.createPointer("lab-result")
	orphanedAt := s.now.Add(time.Minute)
	s.orphan(s.ctx, p.ID, orphanedAt)
	s.Require().NoError(tombstones.MarkOrphaned(s.ctx, p.ID, orphanedAt))

	clockNow = clockNow.Add(2 * time.Hour)
	_, ok, err := tombstones.OrphanedAt(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().False(ok, "tombstone should have expired")

	_, err = guard.Resolve(s.ctx, p.ID)
	var denied *DeniedError
	s.Require().ErrorAs(err, &denied)
	s.Equal(ReasonPointerOrphaned, denied.Reason)

	events := s.events(p.ID)
	s.Require().Len(events, 2)
	s.Equal(auditmodels.EventPointerResolveDenied, events[1].Type)
	s.NotContains(events[1].Payload, "source", "denial comes from the store, not the cache")
	s.Equal(float64(0), testutil.ToFloat64(s.metrics.OrphanCacheHits))

	at, ok, err := tombstones.OrphanedAt(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(ok, "store denial should refresh the tombstone")
	s.True(at.Equal(orphanedAt))
}

func (s *GuardSuite) TestAuditFailureWithholdsData() {
	guard := New(s.db, s.chain, failingAuditRecorder{recorder: s.recorder}, WithMetrics(s.metrics))
	p := s.createPointer("lab-result")

	res, err := guard.Resolve(s.ctx, p.ID)
	s.Nil(res)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))

	receipts, err := s.db.Stores().Receipts.ListByPointer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Len(receipts, 1, "resolve receipt must roll back with the failed audit write")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Resolutions.WithLabelValues(OutcomeError)))
}

// TestResolveRacingOrphan checks that no resolve succeeds after the orphan
// has committed.
func (s *GuardSuite) TestResolveRacingOrphan() {
	p := s.createPointer("lab-result")
	guard := New(s.db, s.chain, s.recorder)
	ctx := context.Background()

	const resolvers = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := guard.Resolve(ctx, p.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	close(start)
	s.orphan(ctx, p.ID, time.Now().UTC())
	wg.Wait()

	_, err := guard.Resolve(ctx, p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeDenied))

	resolved := 0
	orphanSeen := false
	for _, e := range s.events(p.ID) {
		switch e.Type {
		case auditmodels.EventPointerOrphaned:
			orphanSeen = true
		case auditmodels.EventPointerResolved:
			s.False(orphanSeen, "resolved event recorded after orphan")
			resolved++
		}
	}
	s.True(orphanSeen)
	s.Equal(successes, resolved)
}
