// Package lifecycle implements the lifecycle coordinator (C6): the state
// machine orchestrating verify -> persist -> audit -> notify for every
// authorization operation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/audit"
	"github.com/dmitrymomot/credvault/internal/domain"
	"github.com/dmitrymomot/credvault/internal/store"
	"github.com/dmitrymomot/credvault/internal/verify"
)

var (
	// ErrVerificationFailed is returned from Create when the dispatcher's
	// result status is not VALID.
	ErrVerificationFailed = errors.New("lifecycle: verification did not succeed")

	// ErrTenantNotFound is returned from Create when the tenant resolver
	// rejects the tenant id.
	ErrTenantNotFound = errors.New("lifecycle: tenant not found")

	// ErrAlreadyTerminal is returned by Revoke on a soft-deleted row.
	ErrAlreadyTerminal = errors.New("lifecycle: authorization is soft-deleted")
)

// TenantResolver confirms a tenant id names a real, active tenant. The core
// has no tenant entity of its own — resolution is delegated so the vault can
// be embedded behind whatever multi-tenancy scheme the deployment uses.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) error
}

// Notifier is the subset of the webhook engine the coordinator depends on.
type Notifier interface {
	SendEvent(ctx context.Context, kind domain.WebhookEventType, auth domain.Authorization, tenantID string, extras map[string]any) error
}

// Coordinator wires the dispatcher, store, audit writer, and notifier into
// the ordered operations the spec defines.
type Coordinator struct {
	tenants    TenantResolver
	dispatcher *verify.Dispatcher
	store      store.Store
	audit      audit.Writer
	notifier   Notifier
	now        func() time.Time
}

// New builds a Coordinator.
func New(tenants TenantResolver, dispatcher *verify.Dispatcher, st store.Store, auditWriter audit.Writer, notifier Notifier) *Coordinator {
	return &Coordinator{
		tenants: tenants, dispatcher: dispatcher, store: st, audit: auditWriter, notifier: notifier,
		now: time.Now,
	}
}

// CreateInput is the request shape for creating an authorization.
type CreateInput struct {
	TenantID      string
	Envelope      verify.CredentialEnvelope
	RawPayload    []byte
	RetentionDays int
	CreatedBy     string
}

// Create runs the full verify -> persist -> audit -> notify sequence.
func (c *Coordinator) Create(ctx context.Context, in CreateInput) (domain.Authorization, error) {
	if err := c.tenants.Resolve(ctx, in.TenantID); err != nil {
		if _, auditErr := c.audit.LogEvent(ctx, in.TenantID, nil, domain.EventTenantNotFound, map[string]any{
			"error": err.Error(),
		}); auditErr != nil {
			return domain.Authorization{}, fmt.Errorf("lifecycle: auditing tenant-not-found: %w", auditErr)
		}
		return domain.Authorization{}, ErrTenantNotFound
	}

	result := c.dispatcher.Verify(ctx, in.Envelope)

	if _, err := c.audit.LogEvent(ctx, in.TenantID, nil, domain.EventVerified, verificationDetail(result)); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: auditing verification: %w", err)
	}

	if !result.Status.Valid() {
		return domain.Authorization{}, fmt.Errorf("%w: %s: %s", ErrVerificationFailed, result.Status, result.Reason)
	}

	now := c.now().UTC()
	auth := domain.Authorization{
		ID:                 uuid.New(),
		TenantID:           in.TenantID,
		Protocol:           in.Envelope.Protocol,
		Issuer:             result.Issuer,
		Subject:            result.Subject,
		Scope:              result.Scope,
		AmountLimit:        result.Amount,
		Currency:           result.Currency,
		Status:             domain.StatusValid,
		RawPayload:         in.RawPayload,
		VerificationStatus: result.Status,
		VerificationReason: result.Reason,
		VerificationDetail: result.Details,
		VerifiedAt:         now,
		RetentionDays:      in.RetentionDays,
		CreatedBy:          in.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if result.ExpiresAt != nil {
		auth.ExpiresAt = *result.ExpiresAt
	}

	if err := c.store.Create(ctx, auth); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: persisting authorization: %w", err)
	}

	if _, err := c.audit.LogEvent(ctx, in.TenantID, &auth.ID, domain.EventCreated, map[string]any{
		"protocol": auth.Protocol,
		"issuer":   auth.Issuer,
	}); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: auditing creation: %w", err)
	}

	if err := c.notifier.SendEvent(ctx, domain.WebhookMandateCreated, auth, in.TenantID, nil); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: notifying creation: %w", err)
	}

	return auth, nil
}

// Reverify re-runs the verifier over the stored raw payload and collapses
// its outcome onto the authorization's stored status per the security
// conservative mapping: anything that isn't VALID, EXPIRED, or REVOKED
// collapses to REVOKED.
func (c *Coordinator) Reverify(ctx context.Context, tenantID string, id uuid.UUID) (domain.Authorization, error) {
	auth, err := c.store.GetByID(ctx, tenantID, id, false)
	if err != nil {
		return domain.Authorization{}, err
	}

	env := verify.CredentialEnvelope{Protocol: auth.Protocol}
	switch auth.Protocol {
	case domain.ProtocolJWTVC:
		env.VCJWT = string(auth.RawPayload)
	default:
		env.Payload = auth.RawPayload
	}

	result := c.dispatcher.Verify(ctx, env)
	oldStatus := auth.Status
	newStatus := collapseStatus(result.Status)

	patch := store.FieldPatch{
		Status:             &newStatus,
		VerificationStatus: &result.Status,
		VerificationReason: &result.Reason,
		VerificationDetail: result.Details,
	}
	now := c.now().UTC()
	patch.VerifiedAt = &now

	updated, err := c.store.Update(ctx, tenantID, id, patch)
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: persisting reverification: %w", err)
	}

	if _, err := c.audit.LogEvent(ctx, tenantID, &id, domain.EventVerified, map[string]any{
		"old_status": oldStatus,
		"new_status": newStatus,
		"result":     verificationDetail(result),
	}); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: auditing reverification: %w", err)
	}

	if newStatus != domain.StatusValid {
		if err := c.notifier.SendEvent(ctx, domain.WebhookMandateVerificationFailed, updated, tenantID, map[string]any{
			"verification_status": result.Status,
		}); err != nil {
			return domain.Authorization{}, fmt.Errorf("lifecycle: notifying verification failure: %w", err)
		}
	}

	return updated, nil
}

// collapseStatus maps a re-verification outcome onto a stored Status per
// the spec's table: VALID/EXPIRED/REVOKED pass through unchanged, every
// other outcome collapses to REVOKED.
func collapseStatus(v domain.VerificationStatus) domain.Status {
	switch v {
	case domain.VerificationValid:
		return domain.StatusValid
	case domain.VerificationExpired:
		return domain.StatusExpired
	case domain.VerificationRevoked:
		return domain.StatusRevoked
	default:
		return domain.StatusRevoked
	}
}

// Revoke is unconditional on a non-soft-deleted row.
func (c *Coordinator) Revoke(ctx context.Context, tenantID string, id uuid.UUID, reason string) (domain.Authorization, error) {
	auth, err := c.store.GetByID(ctx, tenantID, id, false)
	if err != nil {
		return domain.Authorization{}, err
	}
	if auth.SoftDeleteAt != nil {
		return domain.Authorization{}, ErrAlreadyTerminal
	}

	now := c.now().UTC()
	revoked := domain.StatusRevoked
	updated, err := c.store.Update(ctx, tenantID, id, store.FieldPatch{
		Status:        &revoked,
		RevokedAt:     &now,
		RevokedReason: &reason,
	})
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: revoking: %w", err)
	}

	if _, err := c.audit.LogEvent(ctx, tenantID, &id, domain.EventRevoked, map[string]any{"reason": reason}); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: auditing revocation: %w", err)
	}

	if err := c.notifier.SendEvent(ctx, domain.WebhookMandateRevoked, updated, tenantID, map[string]any{"reason": reason}); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: notifying revocation: %w", err)
	}

	return updated, nil
}

// SoftDelete marks a row deleted without removing it.
func (c *Coordinator) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) error {
	now := c.now().UTC()
	if err := c.store.SoftDelete(ctx, tenantID, id, now); err != nil {
		return err
	}
	deleted := domain.StatusDeleted
	if _, err := c.store.Update(ctx, tenantID, id, store.FieldPatch{Status: &deleted}); err != nil {
		return fmt.Errorf("lifecycle: marking deleted status: %w", err)
	}
	if _, err := c.audit.LogEvent(ctx, tenantID, &id, domain.EventSoftDeleted, nil); err != nil {
		return fmt.Errorf("lifecycle: auditing soft-delete: %w", err)
	}
	return nil
}

// Restore reverses a soft-delete, provided the row is not also revoked.
func (c *Coordinator) Restore(ctx context.Context, tenantID string, id uuid.UUID) error {
	if err := c.store.Restore(ctx, tenantID, id); err != nil {
		return err
	}
	valid := domain.StatusValid
	if _, err := c.store.Update(ctx, tenantID, id, store.FieldPatch{Status: &valid}); err != nil {
		return fmt.Errorf("lifecycle: restoring status: %w", err)
	}
	if _, err := c.audit.LogEvent(ctx, tenantID, &id, domain.EventRestored, nil); err != nil {
		return fmt.Errorf("lifecycle: auditing restore: %w", err)
	}
	return nil
}

// Purge is invoked by the retention reaper for rows past their retention
// boundary: it audits PURGED before deleting, since the row must still
// exist for the foreign key at audit time.
func (c *Coordinator) Purge(ctx context.Context, tenantID string, id uuid.UUID) error {
	if _, err := c.audit.LogEvent(ctx, tenantID, &id, domain.EventPurged, nil); err != nil {
		return fmt.Errorf("lifecycle: auditing purge: %w", err)
	}
	return c.store.Purge(ctx, tenantID, id)
}

// Read fetches a single row and records the regulatory-trail READ event.
func (c *Coordinator) Read(ctx context.Context, tenantID string, id uuid.UUID) (domain.Authorization, error) {
	auth, err := c.store.GetByID(ctx, tenantID, id, false)
	if err != nil {
		return domain.Authorization{}, err
	}
	if _, err := c.audit.LogEvent(ctx, tenantID, &id, domain.EventRead, nil); err != nil {
		return domain.Authorization{}, fmt.Errorf("lifecycle: auditing read: %w", err)
	}
	return auth, nil
}

func verificationDetail(r domain.VerificationResult) map[string]any {
	return map[string]any{
		"status":     r.Status,
		"reason":     r.Reason,
		"error_code": r.ErrorCode,
		"issuer":     r.Issuer,
		"subject":    r.Subject,
	}
}
