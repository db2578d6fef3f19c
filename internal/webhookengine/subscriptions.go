package webhookengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// subscriptionCRUDRepo is the operator-facing repository contract —
// satisfied by both MemorySubscriptionRepository and
// PostgresSubscriptionRepository, so SubscriptionManager works identically
// against either backend.
type subscriptionCRUDRepo interface {
	Put(ctx context.Context, sub domain.WebhookSubscription)
	Delete(ctx context.Context, id uuid.UUID)
	GetByID(ctx context.Context, id uuid.UUID) (domain.WebhookSubscription, error)
	ListByTenant(ctx context.Context, tenantID string) []domain.WebhookSubscription
}

// SubscriptionManager exposes the operator-facing CRUD surface over webhook
// subscriptions, layered on top of the same repository the Engine reads
// from so a newly-created subscription is immediately eligible for
// delivery.
type SubscriptionManager struct {
	repo subscriptionCRUDRepo
	now  func() time.Time
}

// NewSubscriptionManager builds a manager over repo.
func NewSubscriptionManager(repo subscriptionCRUDRepo) *SubscriptionManager {
	return &SubscriptionManager{repo: repo, now: time.Now}
}

// CreateSubscriptionInput is the request shape for registering a webhook.
type CreateSubscriptionInput struct {
	TenantID  string
	Name      string
	TargetURL string
	Events    []domain.WebhookEventType
	Secret    string
	Retry     *domain.RetryPolicy
}

// Create registers a new subscription, defaulting its retry policy when the
// caller does not supply one.
func (m *SubscriptionManager) Create(ctx context.Context, in CreateSubscriptionInput) domain.WebhookSubscription {
	events := make(map[domain.WebhookEventType]struct{}, len(in.Events))
	for _, e := range in.Events {
		events[e] = struct{}{}
	}

	retry := domain.DefaultRetryPolicy()
	if in.Retry != nil {
		retry = *in.Retry
	}

	now := m.now().UTC()
	sub := domain.WebhookSubscription{
		ID:        uuid.New(),
		TenantID:  in.TenantID,
		Name:      in.Name,
		TargetURL: in.TargetURL,
		Events:    events,
		Secret:    in.Secret,
		Active:    true,
		Retry:     retry,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.repo.Put(ctx, sub)
	return sub
}

// Deactivate flips a subscription's active flag off without deleting its
// delivery history.
func (m *SubscriptionManager) Deactivate(ctx context.Context, id uuid.UUID) error {
	sub, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	sub.Active = false
	sub.UpdatedAt = m.now().UTC()
	m.repo.Put(ctx, sub)
	return nil
}

// Delete removes a subscription entirely.
func (m *SubscriptionManager) Delete(ctx context.Context, id uuid.UUID) {
	m.repo.Delete(ctx, id)
}

// List returns every subscription belonging to a tenant.
func (m *SubscriptionManager) List(ctx context.Context, tenantID string) []domain.WebhookSubscription {
	return m.repo.ListByTenant(ctx, tenantID)
}
