// Package audit implements the append-only audit log writer (C4): every
// lifecycle transition, verification attempt, and inbound signal is recorded
// here, keyed by a nullable authorization id so events can be logged before
// the row they describe exists.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// Writer is the audit log's write-and-read surface. Writes are never
// batched across authorizations — LogEvent persists exactly one event per
// call.
type Writer interface {
	LogEvent(ctx context.Context, tenantID string, authorizationID *uuid.UUID, kind domain.EventKind, detail map[string]any) (domain.AuditEvent, error)
	Trail(ctx context.Context, tenantID string, authorizationID uuid.UUID) ([]domain.AuditEvent, error)
}

// Repository is the storage-layer dependency a Writer delegates to. Separate
// from Writer so the id/timestamp assignment rule (server-assigned, never
// forgeable by the caller) lives in one place regardless of backend.
type Repository interface {
	Insert(ctx context.Context, event storedEvent) error
	ListByAuthorization(ctx context.Context, tenantID string, authorizationID uuid.UUID) ([]domain.AuditEvent, error)
}

// storedEvent is what a Repository actually persists: the audit event plus
// the tenant scope it belongs to, since AuditEvent itself carries no tenant
// field (tenant scoping is an audit-log storage concern, not a domain one).
type storedEvent struct {
	Event    domain.AuditEvent
	TenantID string
}

type clock func() time.Time

// service is the concrete Writer implementation.
type service struct {
	repo Repository
	now  clock
}

// NewWriter builds a Writer backed by repo.
func NewWriter(repo Repository) Writer {
	return &service{repo: repo, now: time.Now}
}

func (s *service) LogEvent(ctx context.Context, tenantID string, authorizationID *uuid.UUID, kind domain.EventKind, detail map[string]any) (domain.AuditEvent, error) {
	event := domain.AuditEvent{
		ID:              uuid.New(),
		AuthorizationID: authorizationID,
		Kind:            kind,
		Detail:          detail,
		Timestamp:       s.now().UTC(),
	}

	if err := s.repo.Insert(ctx, storedEvent{Event: event, TenantID: tenantID}); err != nil {
		return domain.AuditEvent{}, err
	}
	return event, nil
}

func (s *service) Trail(ctx context.Context, tenantID string, authorizationID uuid.UUID) ([]domain.AuditEvent, error) {
	return s.repo.ListByAuthorization(ctx, tenantID, authorizationID)
}
