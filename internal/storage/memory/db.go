// Package memory is an in-process storage backend. A transaction holds a
// single write lock and stages its writes, which are applied to the
// committed state only when the transaction function returns nil.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	auditmodels "veto/internal/audit/models"
	pointermodels "veto/internal/pointer/models"
	receiptmodels "veto/internal/receipt/models"
	"veto/internal/storage"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

type dataKey struct {
	org  id.OrgID
	hash string
}

type state struct {
	orgs       map[id.OrgID]*pointermodels.Organization
	data       map[id.DataID]*pointermodels.DataObject
	dataByHash map[dataKey]id.DataID
	pointers   map[id.PointerID]*pointermodels.Pointer
	receipts   map[id.PointerID][]*receiptmodels.Receipt
	events     []*auditmodels.Event
}

func newState() *state {
	return &state{
		orgs:       make(map[id.OrgID]*pointermodels.Organization),
		data:       make(map[id.DataID]*pointermodels.DataObject),
		dataByHash: make(map[dataKey]id.DataID),
		pointers:   make(map[id.PointerID]*pointermodels.Pointer),
		receipts:   make(map[id.PointerID][]*receiptmodels.Receipt),
	}
}

// DB implements storage.Database in memory.
type DB struct {
	mu      sync.RWMutex
	state   *state
	timeout time.Duration
}

type Option func(*DB)

// WithTxTimeout overrides the default transaction timeout.
func WithTxTimeout(d time.Duration) Option {
	return func(db *DB) {
		db.timeout = d
	}
}

func New(opts ...Option) *DB {
	db := &DB{state: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Stores returns stores over the committed state. Each call on them is its
// own implicit transaction, unless ctx already carries one from this DB.
func (db *DB) Stores() storage.Stores {
	return db.storesFor(nil)
}

func (db *DB) storesFor(t *txn) storage.Stores {
	return storage.Stores{
		Orgs:     &orgStore{db: db, tx: t},
		Data:     &dataStore{db: db, tx: t},
		Pointers: &pointerStore{db: db, tx: t},
		Receipts: &receiptStore{db: db, tx: t},
		Audit:    &auditStore{db: db, tx: t},
	}
}

type txKey struct{}

// RunInTx runs fn under the write lock against staged state.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, s storage.Stores) error) error {
	if t, ok := ctx.Value(txKey{}).(*txn); ok && t.db == db {
		// Nested call joins the outer transaction.
		return fn(ctx, db.storesFor(t))
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && db.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	t := newTxn(db)
	ctx = context.WithValue(ctx, txKey{}, t)
	if err := fn(ctx, db.storesFor(t)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	t.commit()
	return nil
}

// do runs fn against the transaction bound to the store, the one carried by
// ctx, or a fresh implicit one.
func (db *DB) do(ctx context.Context, bound *txn, write bool, fn func(t *txn) error) error {
	if bound != nil {
		return fn(bound)
	}
	if t, ok := ctx.Value(txKey{}).(*txn); ok && t.db == db {
		return fn(t)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !write {
		db.mu.RLock()
		defer db.mu.RUnlock()
		return fn(newTxn(db))
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	t := newTxn(db)
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// txn overlays staged writes on the committed state.
type txn struct {
	db       *DB
	base     *state
	orgs     map[id.OrgID]*pointermodels.Organization
	data     map[id.DataID]*pointermodels.DataObject
	byHash   map[dataKey]id.DataID
	pointers map[id.PointerID]*pointermodels.Pointer
	receipts map[id.PointerID][]*receiptmodels.Receipt
	events   []*auditmodels.Event
}

func newTxn(db *DB) *txn {
	return &txn{
		db:       db,
		base:     db.state,
		orgs:     make(map[id.OrgID]*pointermodels.Organization),
		data:     make(map[id.DataID]*pointermodels.DataObject),
		byHash:   make(map[dataKey]id.DataID),
		pointers: make(map[id.PointerID]*pointermodels.Pointer),
		receipts: make(map[id.PointerID][]*receiptmodels.Receipt),
	}
}

func (t *txn) org(orgID id.OrgID) (*pointermodels.Organization, bool) {
	if o, ok := t.orgs[orgID]; ok {
		return o, true
	}
	o, ok := t.base.orgs[orgID]
	return o, ok
}

func (t *txn) dataObject(dataID id.DataID) (*pointermodels.DataObject, bool) {
	if d, ok := t.data[dataID]; ok {
		return d, true
	}
	d, ok := t.base.data[dataID]
	return d, ok
}

func (t *txn) dataByHash(key dataKey) (id.DataID, bool) {
	if d, ok := t.byHash[key]; ok {
		return d, true
	}
	d, ok := t.base.dataByHash[key]
	return d, ok
}

func (t *txn) pointer(pointerID id.PointerID) (*pointermodels.Pointer, bool) {
	if p, ok := t.pointers[pointerID]; ok {
		return p, true
	}
	p, ok := t.base.pointers[pointerID]
	return p, ok
}

func (t *txn) allPointers() map[id.PointerID]*pointermodels.Pointer {
	merged := make(map[id.PointerID]*pointermodels.Pointer, len(t.base.pointers)+len(t.pointers))
	maps.Copy(merged, t.base.pointers)
	maps.Copy(merged, t.pointers)
	return merged
}

func (t *txn) chain(pointerID id.PointerID) []*receiptmodels.Receipt {
	base := t.base.receipts[pointerID]
	staged := t.receipts[pointerID]
	out := make([]*receiptmodels.Receipt, 0, len(base)+len(staged))
	out = append(out, base...)
	return append(out, staged...)
}

func (t *txn) allEvents() []*auditmodels.Event {
	out := make([]*auditmodels.Event, 0, len(t.base.events)+len(t.events))
	out = append(out, t.base.events...)
	return append(out, t.events...)
}

func (t *txn) commit() {
	s := t.base
	maps.Copy(s.orgs, t.orgs)
	maps.Copy(s.data, t.data)
	maps.Copy(s.dataByHash, t.byHash)
	maps.Copy(s.pointers, t.pointers)
	for pid, rs := range t.receipts {
		s.receipts[pid] = append(s.receipts[pid], rs...)
	}
	s.events = append(s.events, t.events...)
}
