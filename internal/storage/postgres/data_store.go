package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	pointermodels "veto/internal/pointer/models"
	id "veto/pkg/domain"
	txcontext "veto/pkg/platform/tx"
)

const dataColumns = `id, org_id, subject_id, content_hash, payload, created_at, metadata`

// DataStore exposes no update or delete; the schema also rejects them with a
// trigger.
type DataStore struct {
	db *sql.DB
}

func NewDataStore(db *sql.DB) *DataStore {
	return &DataStore{db: db}
}

func (s *DataStore) FindOrCreate(ctx context.Context, data *pointermodels.DataObject) (*pointermodels.DataObject, bool, error) {
	meta, err := marshalJSONB(data.Metadata)
	if err != nil {
		return nil, false, err
	}
	exec := txcontext.Exec(ctx, s.db)

	var inserted uuid.UUID
	err = exec.QueryRowContext(ctx, `
		INSERT INTO data_objects (`+dataColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (org_id, content_hash) DO NOTHING
		RETURNING id
	`, uuid.UUID(data.ID), uuid.UUID(data.OrgID), data.SubjectID, data.ContentHash, data.Payload, data.CreatedAt, meta).Scan(&inserted)
	switch {
	case err == nil:
		found, err := s.FindByID(ctx, id.DataID(inserted))
		return found, true, err
	case errors.Is(err, sql.ErrNoRows):
		row := exec.QueryRowContext(ctx, `
			SELECT `+dataColumns+`
			FROM data_objects
			WHERE org_id = $1 AND content_hash = $2
		`, uuid.UUID(data.OrgID), data.ContentHash)
		found, err := scanData(row)
		return found, false, err
	default:
		return nil, false, classify(err, "insert data object")
	}
}

func (s *DataStore) FindByID(ctx context.Context, dataID id.DataID) (*pointermodels.DataObject, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+dataColumns+`
		FROM data_objects
		WHERE id = $1
	`, uuid.UUID(dataID))
	return scanData(row)
}

func scanData(row *sql.Row) (*pointermodels.DataObject, error) {
	var (
		rawID, rawOrg uuid.UUID
		meta          []byte
		d             pointermodels.DataObject
	)
	if err := row.Scan(&rawID, &rawOrg, &d.SubjectID, &d.ContentHash, &d.Payload, &d.CreatedAt, &meta); err != nil {
		return nil, classify(err, "scan data object")
	}
	d.ID = id.DataID(rawID)
	d.OrgID = id.OrgID(rawOrg)
	var err error
	if d.Metadata, err = unmarshalJSONB(meta); err != nil {
		return nil, err
	}
	return &d, nil
}
