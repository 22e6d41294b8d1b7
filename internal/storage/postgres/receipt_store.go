package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"veto/internal/crypto"
	receiptmodels "veto/internal/receipt/models"
	id "veto/pkg/domain"
	txcontext "veto/pkg/platform/tx"
)

const receiptColumns = `id, pointer_id, org_id, operation, seq, canonical_form, receipt_hash,
	signature, signature_algorithm, key_id, prev_hash, timestamp, metadata`

// ReceiptStore is append-only. The (pointer_id, seq) and (pointer_id,
// prev_hash) unique constraints turn a forked chain into sentinel.ErrConflict.
type ReceiptStore struct {
	db *sql.DB
}

func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

func (s *ReceiptStore) Append(ctx context.Context, r *receiptmodels.Receipt) error {
	meta, err := marshalJSONB(r.Metadata)
	if err != nil {
		return err
	}
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.UUID(r.ID), uuid.UUID(r.PointerID), uuid.UUID(r.OrgID), string(r.Operation), r.Seq,
		r.CanonicalForm, r.Hash, r.Signature, string(r.SignatureAlgorithm), r.KeyID,
		r.PrevHash, r.Timestamp, meta)
	return classify(err, "insert receipt")
}

func (s *ReceiptStore) Latest(ctx context.Context, pointerID id.PointerID) (*receiptmodels.Receipt, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE pointer_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, uuid.UUID(pointerID))
	return scanReceipt(row)
}

func (s *ReceiptStore) ListByPointer(ctx context.Context, pointerID id.PointerID) ([]*receiptmodels.Receipt, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE pointer_id = $1
		ORDER BY seq ASC
	`, uuid.UUID(pointerID))
	if err != nil {
		return nil, classify(err, "list receipts")
	}
	defer rows.Close()

	var out []*receiptmodels.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

func scanReceipt(row scanner) (*receiptmodels.Receipt, error) {
	var (
		rawID, rawPointer, rawOrg uuid.UUID
		op, alg                   string
		meta                      []byte
		r                         receiptmodels.Receipt
	)
	err := row.Scan(&rawID, &rawPointer, &rawOrg, &op, &r.Seq, &r.CanonicalForm, &r.Hash,
		&r.Signature, &alg, &r.KeyID, &r.PrevHash, &r.Timestamp, &meta)
	if err != nil {
		return nil, classify(err, "scan receipt")
	}
	r.ID = id.ReceiptID(rawID)
	r.PointerID = id.PointerID(rawPointer)
	r.OrgID = id.OrgID(rawOrg)
	r.Operation = receiptmodels.Operation(op)
	r.SignatureAlgorithm = crypto.Algorithm(alg)
	if r.Metadata, err = unmarshalJSONB(meta); err != nil {
		return nil, err
	}
	return &r, nil
}
