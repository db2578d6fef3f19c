// Package domain holds the entity types shared by every component of the
// vault: the trust store, verifiers, the lifecycle coordinator, the stores,
// and the webhook engine all speak in terms of these types rather than their
// own local structs.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Protocol identifies the wire format an authorization was submitted in.
type Protocol string

const (
	ProtocolJWTVC          Protocol = "JWT-VC"
	ProtocolDelegatedToken Protocol = "DelegatedToken"
)

func (p Protocol) Valid() bool {
	return p == ProtocolJWTVC || p == ProtocolDelegatedToken
}

// Status is the stored lifecycle status of an Authorization.
type Status string

const (
	StatusValid    Status = "VALID"
	StatusActive   Status = "ACTIVE"
	StatusExpired  Status = "EXPIRED"
	StatusRevoked  Status = "REVOKED"
	StatusDeleted  Status = "DELETED"
)

// VerificationStatus is the outcome of running a protocol verifier.
type VerificationStatus string

const (
	VerificationValid                VerificationStatus = "VALID"
	VerificationExpired              VerificationStatus = "EXPIRED"
	VerificationSigInvalid           VerificationStatus = "SIG_INVALID"
	VerificationIssuerUnknown        VerificationStatus = "ISSUER_UNKNOWN"
	VerificationInvalidFormat        VerificationStatus = "INVALID_FORMAT"
	VerificationScopeInvalid         VerificationStatus = "SCOPE_INVALID"
	VerificationMissingRequiredField VerificationStatus = "MISSING_REQUIRED_FIELD"
	VerificationRevoked              VerificationStatus = "REVOKED"
)

// Valid reports whether the verification outcome is VALID — the only
// status that allows creation or preserves the stored status unmodified on
// re-verify (alongside EXPIRED and REVOKED, which map to themselves).
func (v VerificationStatus) Valid() bool {
	return v == VerificationValid
}

// VerificationResult is the uniform shape every protocol verifier returns.
type VerificationResult struct {
	Status     VerificationStatus
	Reason     string
	ErrorCode  string // e.g. INVALID_LIMIT, MERCHANT_MISMATCH
	Issuer     string
	Subject    string
	AmountText string // freeform, e.g. "5000.00 USD" for JWT-VC; parsed by the coordinator
	Amount     *Money
	Currency   string
	ExpiresAt  *time.Time
	Scope      map[string]any
	Details    map[string]any
}

// Authorization is the central entity: a verified, tenant-scoped grant of
// bounded financial authority.
type Authorization struct {
	ID         uuid.UUID
	TenantID   string
	Protocol   Protocol
	Issuer     string
	Subject    string
	Scope      map[string]any
	AmountLimit *Money
	Currency   string
	ExpiresAt  time.Time
	Status     Status

	RawPayload []byte // verbatim original credential bytes, never mutated

	VerificationStatus VerificationStatus
	VerificationReason string
	VerificationDetail map[string]any
	VerifiedAt         time.Time

	RetentionDays int
	SoftDeleteAt  *time.Time
	CreatedBy     string

	RevokedAt     *time.Time
	RevokedReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus applies the always-on expiry override: a row past its
// expiration reads as EXPIRED regardless of its stored status, unless it has
// already reached a more terminal state.
func (a *Authorization) EffectiveStatus(now time.Time) Status {
	if a.Status == StatusRevoked || a.Status == StatusDeleted {
		return a.Status
	}
	if !a.ExpiresAt.After(now) {
		return StatusExpired
	}
	return a.Status
}

// Purgeable reports whether a soft-deleted row has crossed its retention boundary.
func (a *Authorization) Purgeable(now time.Time) bool {
	if a.SoftDeleteAt == nil {
		return false
	}
	return now.After(a.SoftDeleteAt.Add(time.Duration(a.RetentionDays) * 24 * time.Hour))
}

// EventKind enumerates every audit event kind, exhaustively.
type EventKind string

const (
	EventCreated              EventKind = "CREATED"
	EventVerified             EventKind = "VERIFIED"
	EventUpdated              EventKind = "UPDATED"
	EventSoftDeleted          EventKind = "SOFT_DELETED"
	EventRestored             EventKind = "RESTORED"
	EventRevoked              EventKind = "REVOKED"
	EventRead                 EventKind = "READ"
	EventExported             EventKind = "EXPORTED"
	EventPurged               EventKind = "PURGED"
	EventTokenUsed            EventKind = "TOKEN_USED"
	EventTokenRevokedExternal EventKind = "TOKEN_REVOKED_EXTERNAL"
	EventTenantNotFound       EventKind = "TENANT_NOT_FOUND"
)

// AuditEvent is an append-only record. AuthorizationID is nullable: events
// logged before a successful create carry a nil id.
type AuditEvent struct {
	ID              uuid.UUID
	AuthorizationID *uuid.UUID
	Kind            EventKind
	Detail          map[string]any
	Timestamp       time.Time
}

// WebhookEventType enumerates the outbound notification kinds.
type WebhookEventType string

const (
	WebhookMandateCreated             WebhookEventType = "MandateCreated"
	WebhookMandateVerificationFailed  WebhookEventType = "MandateVerificationFailed"
	WebhookMandateExpired             WebhookEventType = "MandateExpired"
	WebhookMandateRevoked             WebhookEventType = "MandateRevoked"
)

// RetryPolicy governs a subscription's delivery attempt schedule.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelaySeconds  int
	TimeoutSeconds    int
}

// DefaultRetryPolicy matches the spec's process-wide configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 60, TimeoutSeconds: 30}
}

// WebhookSubscription is a tenant's registration for outbound notifications.
type WebhookSubscription struct {
	ID        uuid.UUID
	TenantID  string
	Name      string
	TargetURL string
	Events    map[WebhookEventType]struct{}
	Secret    string // empty disables HMAC signing
	Active    bool
	Retry     RetryPolicy
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *WebhookSubscription) Subscribes(kind WebhookEventType) bool {
	_, ok := s.Events[kind]
	return ok
}

// WebhookDelivery is one attempt ledger row for a single subscription/event pair.
type WebhookDelivery struct {
	ID              uuid.UUID
	SubscriptionID  uuid.UUID
	AuthorizationID *uuid.UUID
	EventType       WebhookEventType
	Payload         []byte // exact bytes sent on the wire and fed to HMAC
	Attempts        int
	LastStatusCode  *int
	LastResponse    string // truncated to 1KB
	FirstFailedAt   *time.Time
	DeliveredAt     *time.Time
	NextAttemptAt   *time.Time // nil => terminal (delivered or exhausted)
	CreatedAt       time.Time
}

func (d *WebhookDelivery) Delivered() bool {
	return d.DeliveredAt != nil
}

func (d *WebhookDelivery) Terminal() bool {
	return d.NextAttemptAt == nil
}

// InboundEvent records an externally-supplied event id solely for idempotency.
type InboundEvent struct {
	ID         string
	Kind       string
	ReceivedAt time.Time
}

// InboundEventType enumerates the accepted inbound signal kinds.
type InboundEventType string

const (
	InboundTokenUsed    InboundEventType = "token.used"
	InboundTokenRevoked InboundEventType = "token.revoked"
)
