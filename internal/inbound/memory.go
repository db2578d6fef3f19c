package inbound

import (
	"context"
	"sync"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// MemoryEventRepository is an in-process EventRepository.
type MemoryEventRepository struct {
	mu   sync.RWMutex
	seen map[string]domain.InboundEvent
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{seen: make(map[string]domain.InboundEvent)}
}

func (r *MemoryEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seen[eventID]
	return ok, nil
}

func (r *MemoryEventRepository) Insert(ctx context.Context, event domain.InboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[event.ID] = event
	return nil
}
