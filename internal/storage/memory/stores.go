package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"

	auditmodels "veto/internal/audit/models"
	pointermodels "veto/internal/pointer/models"
	receiptmodels "veto/internal/receipt/models"
	id "veto/pkg/domain"
	"veto/pkg/platform/sentinel"
)

type orgStore struct {
	db *DB
	tx *txn
}

func (s *orgStore) Create(ctx context.Context, org *pointermodels.Organization) error {
	return s.db.do(ctx, s.tx, true, func(t *txn) error {
		if _, ok := t.org(org.ID); ok {
			return fmt.Errorf("organization %s: %w", org.ID, sentinel.ErrConflict)
		}
		cp := *org
		cp.Metadata = maps.Clone(org.Metadata)
		t.orgs[org.ID] = &cp
		return nil
	})
}

func (s *orgStore) FindByID(ctx context.Context, orgID id.OrgID) (*pointermodels.Organization, error) {
	var out *pointermodels.Organization
	err := s.db.do(ctx, s.tx, false, func(t *txn) error {
		o, ok := t.org(orgID)
		if !ok {
			return sentinel.ErrNotFound
		}
		cp := *o
		cp.Metadata = maps.Clone(o.Metadata)
		out = &cp
		return nil
	})
	return out, err
}

type dataStore struct {
	db *DB
	tx *txn
}

func cloneData(d *pointermodels.DataObject) *pointermodels.DataObject {
	cp := *d
	cp.Payload = slices.Clone(d.Payload)
	cp.Metadata = maps.Clone(d.Metadata)
	return &cp
}

func (s *dataStore) FindOrCreate(ctx context.Context, data *pointermodels.DataObject) (*pointermodels.DataObject, bool, error) {
	var (
		out     *pointermodels.DataObject
		created bool
	)
	err := s.db.do(ctx, s.tx, true, func(t *txn) error {
		key := dataKey{org: data.OrgID, hash: data.ContentHash}
		if existingID, ok := t.dataByHash(key); ok {
			existing, _ := t.dataObject(existingID)
			out = cloneData(existing)
			return nil
		}
		if _, ok := t.dataObject(data.ID); ok {
			return fmt.Errorf("data object %s: %w", data.ID, sentinel.ErrConflict)
		}
		t.data[data.ID] = cloneData(data)
		t.byHash[key] = data.ID
		out = cloneData(data)
		created = true
		return nil
	})
	return out, created, err
}

func (s *dataStore) FindByID(ctx context.Context, dataID id.DataID) (*pointermodels.DataObject, error) {
	var out *pointermodels.DataObject
	err := s.db.do(ctx, s.tx, false, func(t *txn) error {
		d, ok := t.dataObject(dataID)
		if !ok {
			return sentinel.ErrNotFound
		}
		out = cloneData(d)
		return nil
	})
	return out, err
}

type pointerStore struct {
	db *DB
	tx *txn
}

func clonePointer(p *pointermodels.Pointer) *pointermodels.Pointer {
	cp := *p
	cp.Metadata = maps.Clone(p.Metadata)
	return &cp
}

func (s *pointerStore) Create(ctx context.Context, p *pointermodels.Pointer) error {
	return s.db.do(ctx, s.tx, true, func(t *txn) error {
		if _, ok := t.pointer(p.ID); ok {
			return fmt.Errorf("pointer %s: %w", p.ID, sentinel.ErrConflict)
		}
		if _, ok := t.dataObject(p.DataID); !ok {
			return fmt.Errorf("pointer data %s: %w", p.DataID, sentinel.ErrNotFound)
		}
		t.pointers[p.ID] = clonePointer(p)
		return nil
	})
}

func (s *pointerStore) FindByID(ctx context.Context, pointerID id.PointerID) (*pointermodels.Pointer, error) {
	var out *pointermodels.Pointer
	err := s.db.do(ctx, s.tx, false, func(t *txn) error {
		p, ok := t.pointer(pointerID)
		if !ok {
			return sentinel.ErrNotFound
		}
		out = clonePointer(p)
		return nil
	})
	return out, err
}

// FindForUpdate is FindByID: a memory transaction already holds the only
// write lock.
func (s *pointerStore) FindForUpdate(ctx context.Context, pointerID id.PointerID) (*pointermodels.Pointer, error) {
	return s.FindByID(ctx, pointerID)
}

func (s *pointerStore) UpdateStatus(ctx context.Context, p *pointermodels.Pointer) error {
	return s.db.do(ctx, s.tx, true, func(t *txn) error {
		current, ok := t.pointer(p.ID)
		if !ok {
			return sentinel.ErrNotFound
		}
		if _, orphaned := current.Status.(pointermodels.Orphaned); orphaned {
			return fmt.Errorf("pointer %s is terminal: %w", p.ID, sentinel.ErrInvalidState)
		}
		updated := clonePointer(current)
		updated.Status = p.Status
		t.pointers[p.ID] = updated
		return nil
	})
}

func (s *pointerStore) ListBySubject(ctx context.Context, orgID id.OrgID, subjectID string) ([]*pointermodels.Pointer, error) {
	var out []*pointermodels.Pointer
	err := s.db.do(ctx, s.tx, false, func(t *txn) error {
		for _, p := range t.allPointers() {
			if p.OrgID == orgID && p.SubjectID == subjectID {
				out = append(out, clonePointer(p))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *pointermodels.Pointer) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, err
}

type receiptStore struct {
	db *DB
	tx *txn
}

func cloneReceipt(r *receiptmodels.Receipt) *receiptmodels.Receipt {
	cp := *r
	cp.CanonicalForm = slices.Clone(r.CanonicalForm)
	cp.Signature = slices.Clone(r.Signature)
	cp.Metadata = maps.Clone(r.Metadata)
	return &cp
}

// Append enforces the same uniqueness the SQL schema does: one receipt per
// (pointer, seq) and per (pointer, prev_hash).
func (s *receiptStore) Append(ctx context.Context, r *receiptmodels.Receipt) error {
	return s.db.do(ctx, s.tx, true, func(t *txn) error {
		if _, ok := t.pointer(r.PointerID); !ok {
			return fmt.Errorf("receipt pointer %s: %w", r.PointerID, sentinel.ErrNotFound)
		}
		for _, existing := range t.chain(r.PointerID) {
			if existing.Seq == r.Seq {
				return fmt.Errorf("receipt seq %d: %w", r.Seq, sentinel.ErrConflict)
			}
			if existing.PrevHash.Valid && r.PrevHash.Valid && existing.PrevHash.Hash == r.PrevHash.Hash {
				return fmt.Errorf("receipt prev_hash: %w", sentinel.ErrConflict)
			}
			if existing.ID == r.ID {
				return fmt.Errorf("receipt %s: %w", r.ID, sentinel.ErrConflict)
			}
		}
		t.receipts[r.PointerID] = append(t.receipts[r.PointerID], cloneReceipt(r))
		return nil
	})
}

func (s *receiptStore) Latest(ctx context.Context, pointerID id.PointerID) (*receiptmodels.Receipt, error) {
	var out *receiptmodels.Receipt
	err := s.db.do(ctx, s.tx, false, func(t *txn) error {
		var latest *receiptmodels.Receipt
		for _, r := range t.chain(pointerID) {
			if latest == nil || r.Seq > latest.Seq {
				latest = r
			}
		}
		if latest == nil {
			return sentinel.ErrNotFound
		}
		out = cloneReceipt(latest)
		return nil
	})
	return out, err
}

func (s *receiptStore) ListByPointer(ctx context.Context, pointerID id.PointerID) ([]*receiptmodels.Receipt, error) {
	var out []*receiptmodels.Receipt
	err := s.db.do(ctx, s.tx, false, func(t *txn) error {
		for _, r := range t.chain(pointerID) {
			out = append(out, cloneReceipt(r))
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *receiptmodels.Receipt) int {
		return int(a.Seq - b.Seq)
	})
	return out, err
}

type auditStore struct {
	db *DB
	tx *txn
}

func (s *auditStore) Append(ctx context.Context, e *auditmodels.Event) error {
	return s.db.do(ctx, s.tx, true, func(t *txn) error {
		cp := *e
		cp.Payload = maps.Clone(e.Payload)
		t.events = append(t.events, &cp)
		return nil
	})
}

func (s *auditStore) ListByPointers(ctx context.Context, pointerIDs []id.PointerID) ([]*auditmodels.Event, error) {
	want := make(map[id.PointerID]struct{}, len(pointerIDs))
	for _, pid := range pointerIDs {
		want[pid] = struct{}{}
	}
	var out []*auditmodels.Event
	err := s.db.do(ctx, s.tx, false, func(t *txn) error {
		for _, e := range t.allEvents() {
			if e.PointerID == nil {
				continue
			}
			if _, ok := want[*e.PointerID]; ok {
				cp := *e
				cp.Payload = maps.Clone(e.Payload)
				out = append(out, &cp)
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b *auditmodels.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, err
}
