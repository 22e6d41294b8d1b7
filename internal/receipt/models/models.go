package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"veto/internal/crypto"
	id "veto/pkg/domain"
)

// Operation is the pointer transition a receipt attests to.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationResolve Operation = "resolve"
	OperationOrphan  Operation = "orphan"
)

func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationResolve, OperationOrphan:
		return true
	}
	return false
}

// Link is the optional reference from a receipt to its predecessor's hash.
// The zero value is the absent link carried by the first receipt of a chain.
type Link struct {
	Hash  string
	Valid bool
}

// LinkTo returns a present link to hash.
func LinkTo(hash string) Link {
	return Link{Hash: hash, Valid: true}
}

func (l Link) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(l.Hash)
}

func (l *Link) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = Link{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = LinkTo(s)
	return nil
}

// Scan implements sql.Scanner.
func (l *Link) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = Link{}
	case string:
		*l = LinkTo(v)
	case []byte:
		*l = LinkTo(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Link", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (l Link) Value() (driver.Value, error) {
	if !l.Valid {
		return nil, nil
	}
	return l.Hash, nil
}

// CanonicalValue is the value placed under prev_hash in the canonical form.
func (l Link) CanonicalValue() any {
	if !l.Valid {
		return nil
	}
	return l.Hash
}

// Receipt is a signed, hash-chained attestation of one pointer operation.
//
// Invariants:
//   - Hash is the hex digest of CanonicalForm
//   - Seq 0 has no PrevHash; Seq n>0 links to the Hash of Seq n-1
//   - Receipts are never updated or deleted
type Receipt struct {
	ID                 id.ReceiptID     `json:"id"`
	PointerID          id.PointerID     `json:"pointer_id"`
	OrgID              id.OrgID         `json:"org_id"`
	Operation          Operation        `json:"operation"`
	Seq                int64            `json:"seq"`
	CanonicalForm      []byte           `json:"canonical_form"`
	Hash               string           `json:"receipt_hash"`
	Signature          []byte           `json:"signature"`
	SignatureAlgorithm crypto.Algorithm `json:"signature_algorithm"`
	KeyID              string           `json:"key_id"`
	PrevHash           Link             `json:"prev_hash"`
	Timestamp          time.Time        `json:"timestamp"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
}

// IsGenesis reports whether the receipt opens its pointer's chain.
func (r *Receipt) IsGenesis() bool {
	return r.Seq == 0
}

// Verification is the outcome of walking a pointer's receipt chain.
type Verification struct {
	PointerID id.PointerID `json:"pointer_id"`
	Valid     bool         `json:"valid"`
	Length    int          `json:"length"`
	BrokenAt  *int64       `json:"broken_at,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}
