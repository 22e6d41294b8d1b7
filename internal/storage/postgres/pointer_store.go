package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	pointermodels "veto/internal/pointer/models"
	id "veto/pkg/domain"
	"veto/pkg/platform/sentinel"
	txcontext "veto/pkg/platform/tx"
)

const pointerColumns = `id, org_id, data_id, subject_id, status, orphaned_at, orphan_reason, created_at, metadata`

type PointerStore struct {
	db *sql.DB
}

func NewPointerStore(db *sql.DB) *PointerStore {
	return &PointerStore{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func statusColumns(status pointermodels.Status) (string, *time.Time, *string) {
	if o, ok := status.(pointermodels.Orphaned); ok {
		at := o.At
		reason := o.Reason
		return string(pointermodels.StatusOrphaned), &at, &reason
	}
	return string(pointermodels.StatusActive), nil, nil
}

func (s *PointerStore) Create(ctx context.Context, p *pointermodels.Pointer) error {
	meta, err := marshalJSONB(p.Metadata)
	if err != nil {
		return err
	}
	status, orphanedAt, reason := statusColumns(p.Status)
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO pointers (`+pointerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(p.ID), uuid.UUID(p.OrgID), uuid.UUID(p.DataID), p.SubjectID,
		status, orphanedAt, reason, p.CreatedAt, meta)
	return classify(err, "insert pointer")
}

func (s *PointerStore) FindByID(ctx context.Context, pointerID id.PointerID) (*pointermodels.Pointer, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+pointerColumns+`
		FROM pointers
		WHERE id = $1
	`, uuid.UUID(pointerID))
	return scanPointer(row)
}

func (s *PointerStore) FindForUpdate(ctx context.Context, pointerID id.PointerID) (*pointermodels.Pointer, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+pointerColumns+`
		FROM pointers
		WHERE id = $1
		FOR UPDATE
	`, uuid.UUID(pointerID))
	return scanPointer(row)
}

// UpdateStatus only moves an active row; an already orphaned row is left
// untouched and reported as sentinel.ErrInvalidState.
func (s *PointerStore) UpdateStatus(ctx context.Context, p *pointermodels.Pointer) error {
	status, orphanedAt, reason := statusColumns(p.Status)
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE pointers
		SET status = $2, orphaned_at = $3, orphan_reason = $4
		WHERE id = $1 AND status = 'active'
	`, uuid.UUID(p.ID), status, orphanedAt, reason)
	if err != nil {
		return classify(err, "update pointer status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pointer status: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, p.ID); err != nil {
			return err
		}
		return fmt.Errorf("pointer %s is terminal: %w", p.ID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PointerStore) ListBySubject(ctx context.Context, orgID id.OrgID, subjectID string) ([]*pointermodels.Pointer, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+pointerColumns+`
		FROM pointers
		WHERE org_id = $1 AND subject_id = $2
		ORDER BY created_at ASC
	`, uuid.UUID(orgID), subjectID)
	if err != nil {
		return nil, classify(err, "list pointers")
	}
	defer rows.Close()

	var out []*pointermodels.Pointer
	for rows.Next() {
		p, err := scanPointer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pointers: %w", err)
	}
	return out, nil
}

func scanPointer(row scanner) (*pointermodels.Pointer, error) {
	var (
		rawID, rawOrg, rawData uuid.UUID
		status                 string
		orphanedAt             sql.NullTime
		reason                 sql.NullString
		meta                   []byte
		p                      pointermodels.Pointer
	)
	if err := row.Scan(&rawID, &rawOrg, &rawData, &p.SubjectID, &status, &orphanedAt, &reason, &p.CreatedAt, &meta); err != nil {
		return nil, classify(err, "scan pointer")
	}
	var at *time.Time
	if orphanedAt.Valid {
		at = &orphanedAt.Time
	}
	st, err := pointermodels.StatusFromColumns(status, at, reason.String)
	if err != nil {
		return nil, fmt.Errorf("pointer %s: %v: %w", rawID, err, sentinel.ErrInvalidState)
	}
	p.ID = id.PointerID(rawID)
	p.OrgID = id.OrgID(rawOrg)
	p.DataID = id.DataID(rawData)
	p.Status = st
	if p.Metadata, err = unmarshalJSONB(meta); err != nil {
		return nil, err
	}
	return &p, nil
}
