package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// PostgresEventRepository persists processed inbound event ids in the
// inbound_events table, giving idempotency that survives a restart.
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

func (r *PostgresEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM inbound_events WHERE id = $1`, eventID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inbound: checking event existence: %w", err)
	}
	return true, nil
}

func (r *PostgresEventRepository) Insert(ctx context.Context, event domain.InboundEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbound_events (id, kind, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Kind, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("inbound: inserting event: %w", err)
	}
	return nil
}
