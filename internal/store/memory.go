package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]domain.Authorization
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]domain.Authorization)}
}

func (s *MemoryStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID, includeSoftDeleted bool) (domain.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return domain.Authorization{}, ErrNotFound
	}
	if row.SoftDeleteAt != nil && !includeSoftDeleted {
		return domain.Authorization{}, ErrNotFound
	}
	return row, nil
}

func (s *MemoryStore) Create(ctx context.Context, auth domain.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[auth.ID]; exists {
		return ErrConflict
	}
	s.rows[auth.ID] = auth
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, tenantID string, id uuid.UUID, patch FieldPatch) (domain.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return domain.Authorization{}, ErrNotFound
	}

	applyPatch(&row, patch)
	row.UpdatedAt = time.Now().UTC()
	s.rows[id] = row
	return row, nil
}

func applyPatch(row *domain.Authorization, patch FieldPatch) {
	if patch.Status != nil {
		row.Status = *patch.Status
	}
	if patch.VerificationStatus != nil {
		row.VerificationStatus = *patch.VerificationStatus
	}
	if patch.VerificationReason != nil {
		row.VerificationReason = *patch.VerificationReason
	}
	if patch.VerificationDetail != nil {
		row.VerificationDetail = patch.VerificationDetail
	}
	if patch.VerifiedAt != nil {
		row.VerifiedAt = *patch.VerifiedAt
	}
	if patch.RevokedAt != nil {
		row.RevokedAt = patch.RevokedAt
	}
	if patch.RevokedReason != nil {
		row.RevokedReason = *patch.RevokedReason
	}
	if patch.SoftDeleteAt != nil {
		row.SoftDeleteAt = *patch.SoftDeleteAt
	}
}

func (s *MemoryStore) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return ErrNotFound
	}
	at = at.UTC()
	row.SoftDeleteAt = &at
	row.UpdatedAt = at
	s.rows[id] = row
	return nil
}

func (s *MemoryStore) Restore(ctx context.Context, tenantID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return ErrNotFound
	}
	if row.SoftDeleteAt == nil {
		return ErrNotSoftDeleted
	}
	if row.Status == domain.StatusRevoked {
		return ErrNotSoftDeleted
	}
	row.SoftDeleteAt = nil
	row.UpdatedAt = time.Now().UTC()
	s.rows[id] = row
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context, tenantID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.rows, id)
	_ = row
	return nil
}

func (s *MemoryStore) ListPurgeable(ctx context.Context, cutoff time.Time) ([]domain.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Authorization
	for _, row := range s.rows {
		if row.SoftDeleteAt == nil {
			continue
		}
		boundary := row.SoftDeleteAt.Add(time.Duration(row.RetentionDays) * 24 * time.Hour)
		if boundary.Before(cutoff) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, filter Filter) (Page, error) {
	if filter.Limit > MaxSearchLimit {
		return Page{}, ErrLimitExceeded
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Authorization
	for _, row := range s.rows {
		if matches(row, filter) {
			matched = append(matched, row)
		}
	}

	sortRows(matched, filter.SortBy, filter.SortDir)

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return Page{Items: append([]domain.Authorization(nil), matched[start:end]...), TotalCount: total}, nil
}

func matches(row domain.Authorization, f Filter) bool {
	if !f.IsAdmin && row.TenantID != f.TenantID {
		return false
	}
	if row.SoftDeleteAt != nil && !f.IncludeDeleted {
		return false
	}
	if f.Protocol != nil && row.Protocol != *f.Protocol {
		return false
	}
	if f.Issuer != nil && row.Issuer != *f.Issuer {
		return false
	}
	if f.Subject != nil && row.Subject != *f.Subject {
		return false
	}
	if f.Status != nil && row.EffectiveStatus(time.Now()) != *f.Status {
		return false
	}
	if f.ExpiresBefore != nil && !row.ExpiresAt.Before(*f.ExpiresBefore) {
		return false
	}
	if f.ExpiresAfter != nil && !row.ExpiresAt.After(*f.ExpiresAfter) {
		return false
	}
	if f.CreatedAfter != nil && !row.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.MinAmount != nil && (row.AmountLimit == nil || *row.AmountLimit < *f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && (row.AmountLimit == nil || *row.AmountLimit > *f.MaxAmount) {
		return false
	}
	if f.Currency != nil && !strings.EqualFold(row.Currency, *f.Currency) {
		return false
	}
	if f.ScopeMerchant != nil && !scopeStringMatches(row.Scope, "merchant", *f.ScopeMerchant) {
		return false
	}
	if f.ScopeCategory != nil && !scopeStringMatches(row.Scope, "category", *f.ScopeCategory) {
		return false
	}
	if f.ScopeItem != nil && !scopeStringMatches(row.Scope, "item", *f.ScopeItem) {
		return false
	}
	return true
}

// scopeStringMatches checks both the flat shape (scope[key]) and the
// nested-constraints shape (scope["constraints"][key]) since JWT-VC and
// DelegatedToken populate Scope differently.
func scopeStringMatches(scope map[string]any, key, want string) bool {
	if v, ok := scope[key]; ok {
		if s, _ := v.(string); s == want {
			return true
		}
	}
	if constraints, ok := scope["constraints"].(map[string]any); ok {
		if v, ok := constraints[key]; ok {
			if s, _ := v.(string); s == want {
				return true
			}
		}
	}
	return false
}

func sortRows(rows []domain.Authorization, field SortField, dir SortDirection) {
	if field == "" {
		field = SortCreatedAt
	}
	less := func(i, j int) bool {
		var a, b time.Time
		switch field {
		case SortExpiresAt:
			a, b = rows[i].ExpiresAt, rows[j].ExpiresAt
		case SortUpdatedAt:
			a, b = rows[i].UpdatedAt, rows[j].UpdatedAt
		default:
			a, b = rows[i].CreatedAt, rows[j].CreatedAt
		}
		if dir == SortDesc {
			return a.After(b)
		}
		return a.Before(b)
	}
	sort.Slice(rows, less)
}
