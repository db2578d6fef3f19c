package webhookengine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// MemorySubscriptionRepository is an in-process SubscriptionRepository.
type MemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]domain.WebhookSubscription
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[uuid.UUID]domain.WebhookSubscription)}
}

func (r *MemorySubscriptionRepository) Put(ctx context.Context, sub domain.WebhookSubscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
}

func (r *MemorySubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

func (r *MemorySubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return domain.WebhookSubscription{}, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *MemorySubscriptionRepository) ListActiveForEvent(ctx context.Context, tenantID string, kind domain.WebhookEventType) ([]domain.WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.WebhookSubscription
	for _, sub := range r.subs {
		if sub.TenantID != tenantID || !sub.Active {
			continue
		}
		if sub.Subscribes(kind) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *MemorySubscriptionRepository) ListByTenant(ctx context.Context, tenantID string) []domain.WebhookSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.WebhookSubscription
	for _, sub := range r.subs {
		if sub.TenantID == tenantID {
			out = append(out, sub)
		}
	}
	return out
}

// MemoryDeliveryRepository is an in-process DeliveryRepository.
type MemoryDeliveryRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]domain.WebhookDelivery
}

func NewMemoryDeliveryRepository() *MemoryDeliveryRepository {
	return &MemoryDeliveryRepository{rows: make(map[uuid.UUID]domain.WebhookDelivery)}
}

func (r *MemoryDeliveryRepository) Insert(ctx context.Context, d domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[d.ID] = d
	return nil
}

func (r *MemoryDeliveryRepository) Update(ctx context.Context, d domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[d.ID] = d
	return nil
}

func (r *MemoryDeliveryRepository) ListDue(ctx context.Context, now time.Time) ([]domain.WebhookDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.WebhookDelivery
	for _, d := range r.rows {
		if d.Delivered() || d.NextAttemptAt == nil {
			continue
		}
		if !d.NextAttemptAt.After(now) {
			out = append(out, d)
		}
	}
	return out, nil
}
