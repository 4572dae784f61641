package reconcile

import (
	"context"
	"sync"

	"regsync/pkg/domain"
)

// InMemoryEntityStore backs unit tests and local runs. Per-key locking is
// approximated by the MemoryTxRunner serializing whole calls, matching the
// row-lock contract coarsely but correctly.
type InMemoryEntityStore struct {
	mu       sync.RWMutex
	entities map[string]*CanonicalEntity
}

func NewInMemoryEntityStore() *InMemoryEntityStore {
	return &InMemoryEntityStore{entities: make(map[string]*CanonicalEntity)}
}

func (s *InMemoryEntityStore) Get(_ context.Context, registrationNo string) (*CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[registrationNo].Clone(), nil
}

func (s *InMemoryEntityStore) GetForUpdate(ctx context.Context, registrationNo string) (*CanonicalEntity, error) {
	return s.Get(ctx, registrationNo)
}

func (s *InMemoryEntityStore) Create(_ context.Context, entity *CanonicalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.RegistrationNo] = entity.Clone()
	return nil
}

func (s *InMemoryEntityStore) Update(_ context.Context, entity *CanonicalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.RegistrationNo] = entity.Clone()
	return nil
}

// InMemoryChangeLog appends entries under a mutex; ListByRegistration
// returns them in append order, which is what history replay relies on.
type InMemoryChangeLog struct {
	mu      sync.RWMutex
	entries []ChangeLogEntry
}

func NewInMemoryChangeLog() *InMemoryChangeLog {
	return &InMemoryChangeLog{}
}

func (s *InMemoryChangeLog) Append(_ context.Context, entry ChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryChangeLog) ListByRegistration(_ context.Context, id domain.RegistrationID) ([]ChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ChangeLogEntry
	for _, e := range s.entries {
		if e.RegistrationID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemoryTxRunner serializes every call. Coarser than per-registration row
// locks, but it preserves the read-decide-write atomicity the orchestrator
// depends on.
type MemoryTxRunner struct {
	mu sync.Mutex
}

func NewMemoryTxRunner() *MemoryTxRunner {
	return &MemoryTxRunner{}
}

func (r *MemoryTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
