package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	auditmodels "veto/internal/audit/models"
	id "veto/pkg/domain"
	txcontext "veto/pkg/platform/tx"
)

const auditColumns = `id, org_id, pointer_id, receipt_id, event_type, category, payload,
	actor_id, request_id, ip_address, user_agent, timestamp`

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func nullableUUID[T ~[16]byte](v *T) *uuid.UUID {
	if v == nil {
		return nil
	}
	u := uuid.UUID(*v)
	return &u
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *AuditStore) Append(ctx context.Context, e *auditmodels.Event) error {
	payload, err := marshalJSONB(e.Payload)
	if err != nil {
		return err
	}
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_events (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, uuid.UUID(e.ID), nullableUUID(e.OrgID), nullableUUID(e.PointerID), nullableUUID(e.ReceiptID),
		string(e.Type), string(e.Type.Category()), payload,
		nullString(e.ActorID), nullString(e.RequestID), nullString(e.ClientIP), nullString(e.UserAgent),
		e.Timestamp)
	return classify(err, "insert audit event")
}

// ListByPointers returns events referencing any of pointerIDs, oldest first.
func (s *AuditStore) ListByPointers(ctx context.Context, pointerIDs []id.PointerID) ([]*auditmodels.Event, error) {
	if len(pointerIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(pointerIDs))
	for i, pid := range pointerIDs {
		ids[i] = pid.String()
	}
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_events
		WHERE pointer_id = ANY($1::uuid[])
		ORDER BY timestamp ASC, id ASC
	`, pq.Array(ids))
	if err != nil {
		return nil, classify(err, "list audit events")
	}
	defer rows.Close()

	var out []*auditmodels.Event
	for rows.Next() {
		var (
			rawID                       uuid.UUID
			orgID, pointerID, receiptID uuid.NullUUID
			eventType, category         string
			payload                     []byte
			actor, request, ip, ua      sql.NullString
			e                           auditmodels.Event
		)
		if err := rows.Scan(&rawID, &orgID, &pointerID, &receiptID, &eventType, &category, &payload,
			&actor, &request, &ip, &ua, &e.Timestamp); err != nil {
			return nil, classify(err, "scan audit event")
		}
		e.ID = id.EventID(rawID)
		if orgID.Valid {
			v := id.OrgID(orgID.UUID)
			e.OrgID = &v
		}
		if pointerID.Valid {
			v := id.PointerID(pointerID.UUID)
			e.PointerID = &v
		}
		if receiptID.Valid {
			v := id.ReceiptID(receiptID.UUID)
			e.ReceiptID = &v
		}
		e.Type = auditmodels.EventType(eventType)
		e.ActorID = actor.String
		e.RequestID = request.String
		e.ClientIP = ip.String
		e.UserAgent = ua.String
		if e.Payload, err = unmarshalJSONB(payload); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
