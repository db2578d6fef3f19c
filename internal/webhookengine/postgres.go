package webhookengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// PostgresSubscriptionRepository persists webhook subscriptions.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

const subColumns = `id, tenant_id, name, target_url, events, secret, active,
	max_attempts, base_delay_seconds, timeout_seconds, created_at, updated_at`

func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.WebhookSubscription, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM webhook_subscriptions WHERE id = $1`, subColumns), id)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WebhookSubscription{}, ErrSubscriptionNotFound
	}
	return sub, err
}

func (r *PostgresSubscriptionRepository) ListActiveForEvent(ctx context.Context, tenantID string, kind domain.WebhookEventType) ([]domain.WebhookSubscription, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM webhook_subscriptions WHERE tenant_id = $1 AND active = true AND events ? $2`, subColumns),
		tenantID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("webhookengine: listing subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (r *PostgresSubscriptionRepository) Insert(ctx context.Context, sub domain.WebhookSubscription) error {
	events := make([]string, 0, len(sub.Events))
	for e := range sub.Events {
		events = append(events, string(e))
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("webhookengine: marshaling events: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO webhook_subscriptions (id, tenant_id, name, target_url, events, secret, active,
			max_attempts, base_delay_seconds, timeout_seconds, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sub.ID, sub.TenantID, sub.Name, sub.TargetURL, eventsJSON, sub.Secret, sub.Active,
		sub.Retry.MaxAttempts, sub.Retry.BaseDelaySeconds, sub.Retry.TimeoutSeconds, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("webhookengine: inserting subscription: %w", err)
	}
	return nil
}

// Put upserts sub by id, so SubscriptionManager's Create/Deactivate can
// target either the in-memory or the Postgres repository interchangeably.
func (r *PostgresSubscriptionRepository) Put(ctx context.Context, sub domain.WebhookSubscription) {
	events := make([]string, 0, len(sub.Events))
	for e := range sub.Events {
		events = append(events, string(e))
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return
	}

	_, _ = r.pool.Exec(ctx, `
		INSERT INTO webhook_subscriptions (id, tenant_id, name, target_url, events, secret, active,
			max_attempts, base_delay_seconds, timeout_seconds, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, target_url = EXCLUDED.target_url, events = EXCLUDED.events,
			secret = EXCLUDED.secret, active = EXCLUDED.active, max_attempts = EXCLUDED.max_attempts,
			base_delay_seconds = EXCLUDED.base_delay_seconds, timeout_seconds = EXCLUDED.timeout_seconds,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.TenantID, sub.Name, sub.TargetURL, eventsJSON, sub.Secret, sub.Active,
		sub.Retry.MaxAttempts, sub.Retry.BaseDelaySeconds, sub.Retry.TimeoutSeconds, sub.CreatedAt, sub.UpdatedAt)
}

// Delete removes a subscription row permanently.
func (r *PostgresSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) {
	_, _ = r.pool.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
}

// ListByTenant returns every subscription (active or not) belonging to tenantID.
func (r *PostgresSubscriptionRepository) ListByTenant(ctx context.Context, tenantID string) []domain.WebhookSubscription {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM webhook_subscriptions WHERE tenant_id = $1`, subColumns), tenantID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []domain.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return out
		}
		out = append(out, sub)
	}
	return out
}

type subRowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row subRowScanner) (domain.WebhookSubscription, error) {
	var (
		sub        domain.WebhookSubscription
		eventsJSON []byte
	)
	err := row.Scan(&sub.ID, &sub.TenantID, &sub.Name, &sub.TargetURL, &eventsJSON, &sub.Secret,
		&sub.Active, &sub.Retry.MaxAttempts, &sub.Retry.BaseDelaySeconds, &sub.Retry.TimeoutSeconds,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return domain.WebhookSubscription{}, err
	}

	var events []string
	if len(eventsJSON) > 0 {
		if err := json.Unmarshal(eventsJSON, &events); err != nil {
			return domain.WebhookSubscription{}, fmt.Errorf("webhookengine: unmarshaling events: %w", err)
		}
	}
	sub.Events = make(map[domain.WebhookEventType]struct{}, len(events))
	for _, e := range events {
		sub.Events[domain.WebhookEventType(e)] = struct{}{}
	}
	return sub, nil
}

// PostgresDeliveryRepository persists the webhook delivery ledger.
type PostgresDeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDeliveryRepository(pool *pgxpool.Pool) *PostgresDeliveryRepository {
	return &PostgresDeliveryRepository{pool: pool}
}

func (r *PostgresDeliveryRepository) Insert(ctx context.Context, d domain.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (id, subscription_id, authorization_id, event_type, payload,
			attempts, last_status_code, last_response, first_failed_at, delivered_at, next_attempt_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		d.ID, d.SubscriptionID, d.AuthorizationID, string(d.EventType), d.Payload,
		d.Attempts, d.LastStatusCode, d.LastResponse, d.FirstFailedAt, d.DeliveredAt, d.NextAttemptAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("webhookengine: inserting delivery: %w", err)
	}
	return nil
}

func (r *PostgresDeliveryRepository) Update(ctx context.Context, d domain.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries SET attempts = $1, last_status_code = $2, last_response = $3,
			first_failed_at = $4, delivered_at = $5, next_attempt_at = $6
		WHERE id = $7`,
		d.Attempts, d.LastStatusCode, d.LastResponse, d.FirstFailedAt, d.DeliveredAt, d.NextAttemptAt, d.ID)
	if err != nil {
		return fmt.Errorf("webhookengine: updating delivery: %w", err)
	}
	return nil
}

const deliveryColumns = `id, subscription_id, authorization_id, event_type, payload,
	attempts, last_status_code, last_response, first_failed_at, delivered_at, next_attempt_at, created_at`

func (r *PostgresDeliveryRepository) ListDue(ctx context.Context, now time.Time) ([]domain.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM webhook_deliveries
		WHERE delivered_at IS NULL AND next_attempt_at IS NOT NULL AND next_attempt_at <= $1`, deliveryColumns), now)
	if err != nil {
		return nil, fmt.Errorf("webhookengine: listing due deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookDelivery
	for rows.Next() {
		var (
			d         domain.WebhookDelivery
			eventType string
		)
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.AuthorizationID, &eventType, &d.Payload,
			&d.Attempts, &d.LastStatusCode, &d.LastResponse, &d.FirstFailedAt, &d.DeliveredAt,
			&d.NextAttemptAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("webhookengine: scanning delivery: %w", err)
		}
		d.EventType = domain.WebhookEventType(eventType)
		out = append(out, d)
	}
	return out, rows.Err()
}
