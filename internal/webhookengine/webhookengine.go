// Package webhookengine implements the webhook delivery engine (C7) and its
// periodic retry worker (C8): per-subscription filtered dispatch, HMAC
// signing, attempt bookkeeping, and exponential backoff scheduling.
package webhookengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/dmitrymomot/credvault/internal/domain"
	"github.com/dmitrymomot/credvault/pkg/webhook"
)

// SubscriptionRepository is the storage dependency for tenant webhook
// subscriptions.
type SubscriptionRepository interface {
	ListActiveForEvent(ctx context.Context, tenantID string, kind domain.WebhookEventType) ([]domain.WebhookSubscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.WebhookSubscription, error)
}

// DeliveryRepository is the storage dependency for the delivery ledger.
type DeliveryRepository interface {
	Insert(ctx context.Context, d domain.WebhookDelivery) error
	Update(ctx context.Context, d domain.WebhookDelivery) error
	ListDue(ctx context.Context, now time.Time) ([]domain.WebhookDelivery, error)
}

// mandateSnapshot mirrors the outbound payload's "mandate" object shape.
type mandateSnapshot struct {
	ID          uuid.UUID      `json:"id"`
	Protocol    domain.Protocol `json:"protocol"`
	Issuer      string         `json:"issuer"`
	Subject     string         `json:"subject"`
	Status      domain.Status  `json:"status"`
	Scope       map[string]any `json:"scope,omitempty"`
	AmountLimit *domain.Money  `json:"amount_limit,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

func snapshotOf(a domain.Authorization) mandateSnapshot {
	return mandateSnapshot{
		ID: a.ID, Protocol: a.Protocol, Issuer: a.Issuer, Subject: a.Subject,
		Status: a.Status, Scope: a.Scope, AmountLimit: a.AmountLimit,
		Currency: a.Currency, ExpiresAt: a.ExpiresAt,
	}
}

// outboundPayload is the exact JSON object serialized once and reused both
// as the request body and as the HMAC input, per the spec's serialization
// stability requirement.
type outboundPayload struct {
	EventType domain.WebhookEventType `json:"event_type"`
	Timestamp time.Time               `json:"timestamp"`
	Mandate   mandateSnapshot         `json:"mandate"`
	Extras    map[string]any          `json:"-"`
}

func (p outboundPayload) MarshalJSON() ([]byte, error) {
	base := map[string]any{
		"event_type": p.EventType,
		"timestamp":  p.Timestamp.Format(time.RFC3339),
		"mandate":    p.Mandate,
	}
	for k, v := range p.Extras {
		base[k] = v
	}
	return json.Marshal(base)
}

// Engine dispatches outbound webhook events and performs delivery attempts.
// Each subscription gets its own circuit breaker so one misbehaving target
// cannot stall delivery to the tenant's other subscriptions.
type Engine struct {
	subs      SubscriptionRepository
	deliveries DeliveryRepository
	sender    *webhook.Sender
	log       *slog.Logger
	now       func() time.Time
	observe   func(outcome string)

	breakers map[uuid.UUID]*gobreaker.CircuitBreaker
}

// Option configures an Engine.
type Option func(*Engine)

// WithAttemptObserver registers a callback invoked once per delivery
// attempt with "delivered" or "failed", letting a caller wire its own
// metrics without the engine importing a metrics package directly.
func WithAttemptObserver(observe func(outcome string)) Option {
	return func(e *Engine) { e.observe = observe }
}

// New builds an Engine.
func New(subs SubscriptionRepository, deliveries DeliveryRepository, sender *webhook.Sender, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		subs: subs, deliveries: deliveries, sender: sender, log: log,
		now:      time.Now,
		breakers: make(map[uuid.UUID]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendEvent loads every active subscription of tenant matching kind, builds
// the payload once, and attempts immediate delivery to each.
func (e *Engine) SendEvent(ctx context.Context, kind domain.WebhookEventType, auth domain.Authorization, tenantID string, extras map[string]any) error {
	subs, err := e.subs.ListActiveForEvent(ctx, tenantID, kind)
	if err != nil {
		return fmt.Errorf("webhookengine: listing subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload := outboundPayload{
		EventType: kind,
		Timestamp: e.now().UTC(),
		Mandate:   snapshotOf(auth),
		Extras:    extras,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhookengine: marshaling payload: %w", err)
	}

	for _, sub := range subs {
		delivery := domain.WebhookDelivery{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			EventType:      kind,
			Payload:        body,
			CreatedAt:      e.now().UTC(),
		}
		if auth.ID != uuid.Nil {
			id := auth.ID
			delivery.AuthorizationID = &id
		}

		if err := e.deliveries.Insert(ctx, delivery); err != nil {
			e.log.ErrorContext(ctx, "webhookengine: persisting delivery failed",
				slog.String("subscription_id", sub.ID.String()), slog.Any("error", err))
			continue
		}

		e.attempt(ctx, sub, &delivery)
	}

	return nil
}

// attempt performs exactly one delivery try, bringing the per-subscription
// circuit breaker into the loop so a target in open-circuit state is skipped
// without consuming an HTTP round trip. A breaker short-circuit is not a
// delivery attempt: it leaves Attempts and FirstFailedAt untouched and only
// reschedules the next sweep, so a tripped breaker can never burn a delivery
// into max_attempts without the engine ever having called the target.
func (e *Engine) attempt(ctx context.Context, sub domain.WebhookSubscription, d *domain.WebhookDelivery) {
	cb := e.breakerFor(sub.ID)
	raw, cbErr := cb.Execute(func() (any, error) {
		timeout := time.Duration(sub.Retry.TimeoutSeconds) * time.Second
		r := e.sender.Send(ctx, sub.TargetURL, d.Payload, sub.Secret, timeout)
		if !r.Success() {
			return r, fmt.Errorf("webhookengine: delivery attempt failed: status=%d err=%v", r.StatusCode, r.Err)
		}
		return r, nil
	})

	if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
		next := e.now().UTC().Add(time.Duration(sub.Retry.BaseDelaySeconds) * time.Second)
		d.NextAttemptAt = &next
		if updErr := e.deliveries.Update(ctx, *d); updErr != nil {
			e.log.ErrorContext(ctx, "webhookengine: rescheduling breaker-skipped delivery failed",
				slog.String("delivery_id", d.ID.String()), slog.Any("error", updErr))
		}
		e.log.WarnContext(ctx, "webhookengine: delivery skipped, circuit open",
			slog.String("subscription_id", sub.ID.String()), slog.String("delivery_id", d.ID.String()))
		return
	}

	d.Attempts++

	var result webhook.AttemptResult
	if raw != nil {
		result = raw.(webhook.AttemptResult)
	} else if cbErr != nil {
		result = webhook.AttemptResult{Err: cbErr}
	}

	now := e.now().UTC()
	if result.Success() {
		d.DeliveredAt = &now
		d.NextAttemptAt = nil
		if e.observe != nil {
			e.observe("delivered")
		}
	} else {
		if e.observe != nil {
			e.observe("failed")
		}
		if d.FirstFailedAt == nil {
			d.FirstFailedAt = &now
		}
		if d.Attempts < sub.Retry.MaxAttempts {
			backoff := time.Duration(sub.Retry.BaseDelaySeconds) * time.Second * time.Duration(math.Pow(2, float64(d.Attempts-1)))
			next := now.Add(backoff)
			d.NextAttemptAt = &next
		} else {
			d.NextAttemptAt = nil
		}
	}

	code := result.StatusCode
	if code != 0 {
		d.LastStatusCode = &code
	}
	d.LastResponse = result.Excerpt

	if updErr := e.deliveries.Update(ctx, *d); updErr != nil {
		e.log.ErrorContext(ctx, "webhookengine: updating delivery failed",
			slog.String("delivery_id", d.ID.String()), slog.Any("error", updErr))
	}
}

func (e *Engine) breakerFor(subID uuid.UUID) *gobreaker.CircuitBreaker {
	if cb, ok := e.breakers[subID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook-" + subID.String(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	e.breakers[subID] = cb
	return cb
}
