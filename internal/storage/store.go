// Package storage declares the persistence ports shared by the pointer
// registry, the enforcement guard and the audit query surface.
//
// Every mutation that spans more than one store runs inside Tx.RunInTx so the
// pointer row, its receipt and its audit event commit or roll back together.
package storage

import (
	"context"

	auditmodels "veto/internal/audit/models"
	pointermodels "veto/internal/pointer/models"
	receiptmodels "veto/internal/receipt/models"
	id "veto/pkg/domain"
)

// OrganizationStore persists tenants. Create returns sentinel.ErrConflict when
// the ID already exists.
type OrganizationStore interface {
	Create(ctx context.Context, org *pointermodels.Organization) error
	FindByID(ctx context.Context, orgID id.OrgID) (*pointermodels.Organization, error)
}

// DataStore is append-only: there is no update or delete.
type DataStore interface {
	// FindOrCreate inserts data unless an object with the same (org, content
	// hash) exists, in which case the existing object is returned unchanged.
	FindOrCreate(ctx context.Context, data *pointermodels.DataObject) (*pointermodels.DataObject, bool, error)
	FindByID(ctx context.Context, dataID id.DataID) (*pointermodels.DataObject, error)
}

type PointerStore interface {
	Create(ctx context.Context, p *pointermodels.Pointer) error
	FindByID(ctx context.Context, pointerID id.PointerID) (*pointermodels.Pointer, error)
	// FindForUpdate reads the pointer and holds its row lock until the
	// enclosing transaction ends.
	FindForUpdate(ctx context.Context, pointerID id.PointerID) (*pointermodels.Pointer, error)
	UpdateStatus(ctx context.Context, p *pointermodels.Pointer) error
	ListBySubject(ctx context.Context, orgID id.OrgID, subjectID string) ([]*pointermodels.Pointer, error)
}

// ReceiptStore is append-only. Append returns sentinel.ErrConflict when the
// receipt would fork the chain (duplicate seq or prev_hash).
type ReceiptStore interface {
	Append(ctx context.Context, r *receiptmodels.Receipt) error
	Latest(ctx context.Context, pointerID id.PointerID) (*receiptmodels.Receipt, error)
	ListByPointer(ctx context.Context, pointerID id.PointerID) ([]*receiptmodels.Receipt, error)
}

// AuditStore is append-only. Listings are in ascending timestamp order.
type AuditStore interface {
	Append(ctx context.Context, e *auditmodels.Event) error
	ListByPointers(ctx context.Context, pointerIDs []id.PointerID) ([]*auditmodels.Event, error)
}

// Stores bundles the stores a transaction may touch.
type Stores struct {
	Orgs     OrganizationStore
	Data     DataStore
	Pointers PointerStore
	Receipts ReceiptStore
	Audit    AuditStore
}

// Tx provides the transactional boundary. fn must use the Stores and context
// it is handed; its writes become visible only if it returns nil.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Database is a backend: committed-state stores plus a transaction runner.
type Database interface {
	Tx
	Stores() Stores
}
