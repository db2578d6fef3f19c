// Package store implements the authorization store (C5): tenant-scoped
// persistence, search, soft-delete/restore/purge, and the retention reaper's
// query surface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the requested id/tenant.
	ErrNotFound = errors.New("store: authorization not found")

	// ErrConflict is returned on a unique-constraint violation at Create.
	ErrConflict = errors.New("store: authorization already exists")

	// ErrNotSoftDeleted is returned by Restore when the target row is not
	// currently soft-deleted.
	ErrNotSoftDeleted = errors.New("store: authorization is not soft-deleted")

	// ErrLimitExceeded is returned by Search when the caller requests a page
	// larger than the store's hard cap.
	ErrLimitExceeded = errors.New("store: search limit exceeds maximum of 1000")
)

// MaxSearchLimit is the hard cap on a single Search page.
const MaxSearchLimit = 1000

// SortField names the columns Search may order by.
type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortExpiresAt SortField = "expires_at"
	SortUpdatedAt SortField = "updated_at"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Filter narrows a Search call. Zero-value fields are unconstrained. Scope
// lookups match a nested key inside the Authorization's Scope map, e.g.
// ScopeMerchant matches scope["constraints"]["merchant"] or scope["merchant"]
// depending on protocol — the implementation flattens both shapes.
type Filter struct {
	TenantID        string
	IsAdmin         bool // bypasses TenantID scoping entirely
	Protocol        *domain.Protocol
	Issuer          *string
	Subject         *string
	Status          *domain.Status
	ExpiresBefore   *time.Time
	ExpiresAfter    *time.Time
	CreatedAfter    *time.Time
	MinAmount       *domain.Money
	MaxAmount       *domain.Money
	Currency        *string
	ScopeMerchant   *string
	ScopeCategory   *string
	ScopeItem       *string
	IncludeDeleted  bool

	Limit  int
	Offset int
	SortBy SortField
	SortDir SortDirection
}

// Page is one page of Search results.
type Page struct {
	Items      []domain.Authorization
	TotalCount int
}

// FieldPatch carries a partial update to an existing authorization. Nil
// fields are left unchanged.
type FieldPatch struct {
	Status             *domain.Status
	VerificationStatus *domain.VerificationStatus
	VerificationReason *string
	VerificationDetail map[string]any
	VerifiedAt         *time.Time
	RevokedAt          *time.Time
	RevokedReason      *string
	SoftDeleteAt       **time.Time // double pointer: nil means untouched, *nil clears it
}

// Store is the persistence contract every lifecycle operation depends on.
type Store interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID, includeSoftDeleted bool) (domain.Authorization, error)
	Search(ctx context.Context, filter Filter) (Page, error)
	Create(ctx context.Context, auth domain.Authorization) error
	Update(ctx context.Context, tenantID string, id uuid.UUID, patch FieldPatch) (domain.Authorization, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error
	Restore(ctx context.Context, tenantID string, id uuid.UUID) error
	Purge(ctx context.Context, tenantID string, id uuid.UUID) error
	ListPurgeable(ctx context.Context, cutoff time.Time) ([]domain.Authorization, error)
}
