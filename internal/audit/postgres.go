package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// PostgresRepository persists audit events to a pgx connection pool. Rows
// are never updated or deleted — the table has no update/delete path in its
// grants.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository builds a PostgresRepository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const insertEventSQL = `
INSERT INTO audit_events (id, tenant_id, authorization_id, kind, detail, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (r *PostgresRepository) Insert(ctx context.Context, event storedEvent) error {
	detail, err := json.Marshal(event.Event.Detail)
	if err != nil {
		return fmt.Errorf("audit: marshaling detail: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertEventSQL,
		event.Event.ID,
		event.TenantID,
		event.Event.AuthorizationID,
		string(event.Event.Kind),
		detail,
		event.Event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("audit: inserting event: %w", err)
	}
	return nil
}

const listByAuthorizationSQL = `
SELECT id, authorization_id, kind, detail, occurred_at
FROM audit_events
WHERE tenant_id = $1 AND authorization_id = $2
ORDER BY occurred_at ASC`

func (r *PostgresRepository) ListByAuthorization(ctx context.Context, tenantID string, authorizationID uuid.UUID) ([]domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, listByAuthorizationSQL, tenantID, authorizationID)
	if err != nil {
		return nil, fmt.Errorf("audit: querying trail: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			e      domain.AuditEvent
			kind   string
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.AuthorizationID, &kind, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: scanning row: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("audit: unmarshaling detail: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterating rows: %w", err)
	}
	return out, nil
}
