package trunks

import (
	"context"
	"sync"
	"time"
)

// Repository persists trunk records. Update and Delete return the
// previous snapshot so callers can feed the lifecycle orchestrator's
// before/after diff.
type Repository interface {
	Create(ctx context.Context, t Trunk) error
	Get(ctx context.Context, id string) (Trunk, error)
	Update(ctx context.Context, t Trunk) (previous Trunk, err error)
	Delete(ctx context.Context, id string) (Trunk, error)
	List(ctx context.Context) ([]Trunk, error)
}

// MemoryRepo is an in-memory Repository for tests and local development.
type MemoryRepo struct {
	mu     sync.RWMutex
	trunks map[string]Trunk

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{trunks: make(map[string]Trunk), Now: time.Now}
}

func (r *MemoryRepo) Create(_ context.Context, t Trunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trunks[t.ID]; ok {
		return ErrAlreadyExists
	}
	now := r.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.trunks[t.ID] = t
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Trunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trunks[id]
	if !ok {
		return Trunk{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) Update(_ context.Context, t Trunk) (Trunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, ok := r.trunks[t.ID]
	if !ok {
		return Trunk{}, ErrNotFound
	}
	t.CreatedAt = previous.CreatedAt
	t.UpdatedAt = r.Now().UTC()
	r.trunks[t.ID] = t
	return previous, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) (Trunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trunks[id]
	if !ok {
		return Trunk{}, ErrNotFound
	}
	delete(r.trunks, id)
	return t, nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Trunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Trunk, 0, len(r.trunks))
	for _, t := range r.trunks {
		out = append(out, t)
	}
	return out, nil
}
