// Package stream publishes committed receipts to downstream consumers.
// Publishing happens after the receipt's transaction commits and is best
// effort: the receipt store stays the source of truth.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"veto/internal/receipt/models"
)

// Publisher delivers a committed receipt.
type Publisher interface {
	Publish(ctx context.Context, r *models.Receipt) error
}

// Message is the wire form of a receipt. CanonicalForm is carried verbatim
// so consumers can re-hash and verify without calling back.
type Message struct {
	ReceiptID          string         `json:"receipt_id"`
	PointerID          string         `json:"pointer_id"`
	OrgID              string         `json:"org_id"`
	Operation          string         `json:"operation"`
	Seq                int64          `json:"seq"`
	ReceiptHash        string         `json:"receipt_hash"`
	PrevHash           models.Link    `json:"prev_hash"`
	Signature          []byte         `json:"signature"`
	SignatureAlgorithm string         `json:"signature_algorithm"`
	KeyID              string         `json:"key_id"`
	CanonicalForm      string         `json:"canonical_form"`
	Timestamp          time.Time      `json:"timestamp"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// NewMessage converts a receipt to its wire form.
func NewMessage(r *models.Receipt) Message {
	return Message{
		ReceiptID:          r.ID.String(),
		PointerID:          r.PointerID.String(),
		OrgID:              r.OrgID.String(),
		Operation:          string(r.Operation),
		Seq:                r.Seq,
		ReceiptHash:        r.Hash,
		PrevHash:           r.PrevHash,
		Signature:          r.Signature,
		SignatureAlgorithm: string(r.SignatureAlgorithm),
		KeyID:              r.KeyID,
		CanonicalForm:      string(r.CanonicalForm),
		Timestamp:          r.Timestamp.UTC(),
		Metadata:           r.Metadata,
	}
}

// Encode marshals the receipt's wire form.
func Encode(r *models.Receipt) ([]byte, error) {
	return json.Marshal(NewMessage(r))
}

// Nop discards receipts. It is used when no stream is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *models.Receipt) error { return nil }
