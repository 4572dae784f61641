package conflict

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore backs unit tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry // keyed by entry id
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*Entry)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id].Clone(), nil
}

func (s *InMemoryStore) FindOpen(_ context.Context, registrationNo, fieldName string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Status == StatusOpen && e.RegistrationNo == registrationNo && e.FieldName == fieldName {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) Create(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID.String()] = entry.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID.String()] = entry.Clone()
	return nil
}

func (s *InMemoryStore) ListOpen(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Status == StatusOpen {
			out = append(out, *e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListOpenByRegistration(_ context.Context, registrationNo string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Status == StatusOpen && e.RegistrationNo == registrationNo {
			out = append(out, *e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) OpenCountsByRegistration(_ context.Context) ([]RegistrationCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range s.entries {
		if e.Status == StatusOpen {
			counts[e.RegistrationNo]++
		}
	}
	out := make([]RegistrationCount, 0, len(counts))
	for reg, n := range counts {
		out = append(out, RegistrationCount{RegistrationNo: reg, Open: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Open != out[j].Open {
			return out[i].Open > out[j].Open
		}
		return out[i].RegistrationNo < out[j].RegistrationNo
	})
	return out, nil
}

func (s *InMemoryStore) TopFieldsSince(_ context.Context, since time.Time, limit int) ([]FieldCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range s.entries {
		if !e.CreatedAt.Before(since) {
			counts[e.FieldName]++
		}
	}
	out := make([]FieldCount, 0, len(counts))
	for field, n := range counts {
		out = append(out, FieldCount{FieldName: field, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FieldName < out[j].FieldName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
