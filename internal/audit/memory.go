package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// MemoryRepository is an in-process Repository used in tests and local
// development, where events do not need to survive a restart.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []storedEvent
}

// NewMemoryRepository builds an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Insert(ctx context.Context, event storedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryRepository) ListByAuthorization(ctx context.Context, tenantID string, authorizationID uuid.UUID) (result []domain.AuditEvent, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.events {
		if e.TenantID != tenantID {
			continue
		}
		if e.Event.AuthorizationID == nil || *e.Event.AuthorizationID != authorizationID {
			continue
		}
		result = append(result, e.Event)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}
