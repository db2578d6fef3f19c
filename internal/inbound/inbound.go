// Package inbound implements the inbound webhook receiver (C9): HMAC
// verification, event-id idempotency, and applying external signals
// (token used / token revoked) to an authorization.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/audit"
	"github.com/dmitrymomot/credvault/internal/domain"
	"github.com/dmitrymomot/credvault/internal/store"
	"github.com/dmitrymomot/credvault/pkg/webhook"
)

var (
	// ErrBadSignature is returned when the HMAC signature does not match.
	ErrBadSignature = errors.New("inbound: signature verification failed")

	// ErrTokenNotFound is returned when data.token_id resolves to no
	// authorization the caller's tenant can see.
	ErrTokenNotFound = errors.New("inbound: token_id does not resolve to an authorization")

	// ErrUnsupportedEventType is returned for any event_type other than the
	// two the receiver understands.
	ErrUnsupportedEventType = errors.New("inbound: unsupported event_type")
)

// Envelope is the wire shape of every inbound signal.
type Envelope struct {
	EventID   string                     `json:"event_id"`
	EventType domain.InboundEventType    `json:"event_type"`
	Timestamp time.Time                  `json:"timestamp"`
	Data      json.RawMessage            `json:"data"`
}

type tokenUsedData struct {
	TokenID       string         `json:"token_id"`
	Amount        string         `json:"amount"`
	Currency      string         `json:"currency"`
	TransactionID string         `json:"transaction_id"`
	Metadata      map[string]any `json:"metadata"`
}

type tokenRevokedData struct {
	TokenID string `json:"token_id"`
	Reason  string `json:"reason"`
}

// TokenResolver maps an externally-known token/credential id to the vault's
// internal authorization id.
type TokenResolver interface {
	ResolveByToken(ctx context.Context, tokenID string) (tenantID string, authorizationID uuid.UUID, err error)
}

// EventRepository records processed event ids for idempotency.
type EventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Insert(ctx context.Context, event domain.InboundEvent) error
}

// Notifier is the subset of the webhook engine used to propagate a
// token.revoked signal onward as an outbound MandateRevoked event.
type Notifier interface {
	SendEvent(ctx context.Context, kind domain.WebhookEventType, auth domain.Authorization, tenantID string, extras map[string]any) error
}

// Receiver processes inbound signals end to end.
type Receiver struct {
	secret   string
	events   EventRepository
	tokens   TokenResolver
	store    store.Store
	audit    audit.Writer
	notifier Notifier
	now      func() time.Time
}

// New builds a Receiver keyed on the shared HMAC secret.
func New(secret string, events EventRepository, tokens TokenResolver, st store.Store, auditWriter audit.Writer, notifier Notifier) *Receiver {
	return &Receiver{secret: secret, events: events, tokens: tokens, store: st, audit: auditWriter, notifier: notifier, now: time.Now}
}

// ProcessResult is the receiver's reply body shape.
type ProcessResult struct {
	Status string `json:"status"` // "processed" | "already_processed"
}

// Process verifies rawBody against sig, then applies the effect it encodes.
// rawBody must be the exact bytes the caller received on the wire — the
// signature is computed over those bytes, not a re-serialization.
func (r *Receiver) Process(ctx context.Context, rawBody []byte, sig string) (ProcessResult, error) {
	if !webhook.Verify(r.secret, rawBody, sig) {
		return ProcessResult{}, ErrBadSignature
	}

	var env Envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return ProcessResult{}, fmt.Errorf("inbound: malformed envelope: %w", err)
	}

	exists, err := r.events.Exists(ctx, env.EventID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("inbound: checking idempotency: %w", err)
	}
	if exists {
		return ProcessResult{Status: "already_processed"}, nil
	}

	switch env.EventType {
	case domain.InboundTokenUsed:
		if err := r.handleTokenUsed(ctx, env); err != nil {
			return ProcessResult{}, err
		}
	case domain.InboundTokenRevoked:
		if err := r.handleTokenRevoked(ctx, env); err != nil {
			return ProcessResult{}, err
		}
	default:
		return ProcessResult{}, ErrUnsupportedEventType
	}

	// Recorded last: a crash between applying the effect and this insert is
	// safe, since replay would simply re-run the same (idempotent-at-the-
	// domain-level) effect rather than silently drop it.
	if err := r.events.Insert(ctx, domain.InboundEvent{ID: env.EventID, Kind: string(env.EventType), ReceivedAt: r.now().UTC()}); err != nil {
		return ProcessResult{}, fmt.Errorf("inbound: recording event id: %w", err)
	}

	return ProcessResult{Status: "processed"}, nil
}

func (r *Receiver) handleTokenUsed(ctx context.Context, env Envelope) error {
	var data tokenUsedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("inbound: malformed token.used data: %w", err)
	}

	tenantID, authID, err := r.tokens.ResolveByToken(ctx, data.TokenID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenNotFound, err)
	}

	_, err = r.audit.LogEvent(ctx, tenantID, &authID, domain.EventTokenUsed, map[string]any{
		"amount":         data.Amount,
		"currency":       data.Currency,
		"transaction_id": data.TransactionID,
		"metadata":       data.Metadata,
	})
	return err
}

func (r *Receiver) handleTokenRevoked(ctx context.Context, env Envelope) error {
	var data tokenRevokedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("inbound: malformed token.revoked data: %w", err)
	}

	tenantID, authID, err := r.tokens.ResolveByToken(ctx, data.TokenID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenNotFound, err)
	}

	revoked := domain.StatusRevoked
	now := r.now().UTC()
	reason := data.Reason
	if reason == "" {
		reason = "revoked by external authority"
	}

	updated, err := r.store.Update(ctx, tenantID, authID, store.FieldPatch{
		Status:        &revoked,
		RevokedAt:     &now,
		RevokedReason: &reason,
	})
	if err != nil {
		return fmt.Errorf("inbound: applying external revocation: %w", err)
	}

	if _, err := r.audit.LogEvent(ctx, tenantID, &authID, domain.EventTokenRevokedExternal, map[string]any{"reason": reason}); err != nil {
		return fmt.Errorf("inbound: auditing external revocation: %w", err)
	}

	return r.notifier.SendEvent(ctx, domain.WebhookMandateRevoked, updated, tenantID, map[string]any{"reason": reason})
}
