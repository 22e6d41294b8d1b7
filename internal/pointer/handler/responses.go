package handler

import (
	"time"

	"veto/internal/enforcement"
	"veto/internal/pointer/models"
	"veto/internal/pointer/registry"
	receiptmodels "veto/internal/receipt/models"
)

// ReceiptResponse is the client view of a signed receipt. Signature and
// CanonicalForm are base64 encoded by encoding/json.
type ReceiptResponse struct {
	ReceiptID          string    `json:"receipt_id"`
	Operation          string    `json:"operation"`
	Seq                int64     `json:"seq"`
	ReceiptHash        string    `json:"receipt_hash"`
	PrevHash           *string   `json:"prev_hash,omitempty"`
	Signature          []byte    `json:"signature"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	KeyID              string    `json:"key_id"`
	Timestamp          time.Time `json:"timestamp"`
	CanonicalForm      []byte    `json:"canonical_form,omitempty"`
}

func toReceiptResponse(r *receiptmodels.Receipt, withCanonical bool) *ReceiptResponse {
	if r == nil {
		return nil
	}
	resp := &ReceiptResponse{
		ReceiptID:          r.ID.String(),
		Operation:          string(r.Operation),
		Seq:                r.Seq,
		ReceiptHash:        r.Hash,
		Signature:          r.Signature,
		SignatureAlgorithm: string(r.SignatureAlgorithm),
		KeyID:              r.KeyID,
		Timestamp:          r.Timestamp,
	}
	if r.PrevHash.Valid {
		prev := r.PrevHash.Hash
		resp.PrevHash = &prev
	}
	if withCanonical {
		resp.CanonicalForm = r.CanonicalForm
	}
	return resp
}

type CreatePointerResponse struct {
	PointerID  string           `json:"pointer_id"`
	DataID     string           `json:"data_id"`
	OrgID      string           `json:"org_id"`
	Status     string           `json:"status"`
	DataReused bool             `json:"data_reused"`
	Receipt    *ReceiptResponse `json:"receipt"`
}

func fromCreateResult(res *registry.CreateResult) *CreatePointerResponse {
	return &CreatePointerResponse{
		PointerID:  res.Pointer.ID.String(),
		DataID:     res.Data.ID.String(),
		OrgID:      res.Pointer.OrgID.String(),
		Status:     string(models.StatusActive),
		DataReused: res.DataReused,
		Receipt:    toReceiptResponse(res.Receipt, false),
	}
}

type ResolveResponse struct {
	PointerID        string           `json:"pointer_id"`
	DataID           string           `json:"data_id"`
	SubjectID        string           `json:"subject_id"`
	ContentHash      string           `json:"content_hash"`
	EncryptedPayload []byte           `json:"encrypted_payload,omitempty"`
	Status           string           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	Receipt          *ReceiptResponse `json:"receipt,omitempty"`
}

func fromResolution(res *enforcement.Resolution) *ResolveResponse {
	return &ResolveResponse{
		PointerID:        res.Pointer.ID.String(),
		DataID:           res.Data.ID.String(),
		SubjectID:        res.Pointer.SubjectID,
		ContentHash:      res.Data.ContentHash,
		EncryptedPayload: res.Data.Payload,
		Status:           string(models.StatusActive),
		CreatedAt:        res.Pointer.CreatedAt,
		Receipt:          toReceiptResponse(res.Receipt, false),
	}
}

type OrphanPointerResponse struct {
	PointerID  string           `json:"pointer_id"`
	Status     string           `json:"status"`
	OrphanedAt *time.Time       `json:"orphaned_at"`
	Reason     string           `json:"reason"`
	Receipt    *ReceiptResponse `json:"receipt"`
}

func fromOrphanResult(res *registry.OrphanResult) *OrphanPointerResponse {
	resp := &OrphanPointerResponse{
		PointerID:  res.Pointer.ID.String(),
		Status:     string(models.StatusOrphaned),
		OrphanedAt: res.Pointer.OrphanedAt(),
		Receipt:    toReceiptResponse(res.Receipt, false),
	}
	if o, ok := res.Pointer.Status.(models.Orphaned); ok {
		resp.Reason = o.Reason
	}
	return resp
}

type ReceiptListResponse struct {
	PointerID string             `json:"pointer_id"`
	Count     int                `json:"count"`
	Receipts  []*ReceiptResponse `json:"receipts"`
}

func fromReceipts(pointerID string, receipts []*receiptmodels.Receipt) *ReceiptListResponse {
	out := make([]*ReceiptResponse, 0, len(receipts))
	for _, r := range receipts {
		out = append(out, toReceiptResponse(r, true))
	}
	return &ReceiptListResponse{PointerID: pointerID, Count: len(out), Receipts: out}
}

type OrganizationResponse struct {
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
