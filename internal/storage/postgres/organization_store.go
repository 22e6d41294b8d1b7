package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	pointermodels "veto/internal/pointer/models"
	id "veto/pkg/domain"
	txcontext "veto/pkg/platform/tx"
)

type OrganizationStore struct {
	db *sql.DB
}

func NewOrganizationStore(db *sql.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

func (s *OrganizationStore) Create(ctx context.Context, org *pointermodels.Organization) error {
	meta, err := marshalJSONB(org.Metadata)
	if err != nil {
		return err
	}
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at, metadata)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(org.ID), org.Name, org.CreatedAt, meta)
	return classify(err, "insert organization")
}

func (s *OrganizationStore) FindByID(ctx context.Context, orgID id.OrgID) (*pointermodels.Organization, error) {
	var (
		rawID uuid.UUID
		meta  []byte
		org   pointermodels.Organization
	)
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, name, created_at, metadata
		FROM organizations
		WHERE id = $1
	`, uuid.UUID(orgID)).Scan(&rawID, &org.Name, &org.CreatedAt, &meta)
	if err != nil {
		return nil, classify(err, "find organization")
	}
	org.ID = id.OrgID(rawID)
	if org.Metadata, err = unmarshalJSONB(meta); err != nil {
		return nil, err
	}
	return &org, nil
}
