package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bramble-labs/bramble/tree"
)

// MemStore keeps the catalog in memory. Suitable for tests and for the
// daemon's default configuration before a catalog database is configured.
type MemStore struct {
	mu    sync.RWMutex
	trees map[string][]TreeRecord // ascending version order
	now   func() time.Time
}

// NewMemStore creates an empty in-memory catalog.
func NewMemStore() *MemStore {
	return &MemStore{
		trees: make(map[string][]TreeRecord),
		now:   time.Now,
	}
}

// List implements Store.
func (s *MemStore) List(_ context.Context, filter Filter) ([]TreeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TreeRecord
	for _, versions := range s.trees {
		latest := versions[len(versions)-1]
		if matchesFilter(&latest, filter) {
			out = append(out, cloneRecord(latest))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id string, version int) (*TreeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	if version <= 0 {
		rec := cloneRecord(versions[len(versions)-1])
		return &rec, nil
	}
	for _, rec := range versions {
		if rec.Version == version {
			out := cloneRecord(rec)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s version %d", ErrTreeNotFound, id, version)
}

// Save implements Store.
func (s *MemStore) Save(_ context.Context, def *tree.TreeDefinition) (*TreeRecord, error) {
	rec, err := recordFromDefinition(def)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	versions := s.trees[rec.ID]
	if len(versions) == 0 {
		rec.Version = 1
		rec.CreatedAt = now
	} else {
		rec.Version = versions[len(versions)-1].Version + 1
		rec.CreatedAt = versions[0].CreatedAt
		for i := range versions {
			if versions[i].Status == StatusActive {
				versions[i].Status = StatusArchived
			}
		}
	}
	rec.UpdatedAt = now

	s.trees[rec.ID] = append(versions, rec)
	out := cloneRecord(rec)
	return &out, nil
}

// Delete implements Store.
func (s *MemStore) Delete(_ context.Context, id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.trees[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	if version <= 0 {
		delete(s.trees, id)
		return nil
	}
	for i, rec := range versions {
		if rec.Version == version {
			versions = append(versions[:i], versions[i+1:]...)
			if len(versions) == 0 {
				delete(s.trees, id)
			} else {
				s.trees[id] = versions
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s version %d", ErrTreeNotFound, id, version)
}

// ListVersions implements Store.
func (s *MemStore) ListVersions(_ context.Context, id string) ([]TreeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	out := make([]TreeRecord, len(versions))
	for i, rec := range versions {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

// Search implements Store.
func (s *MemStore) Search(_ context.Context, query string) ([]TreeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TreeRecord
	for _, versions := range s.trees {
		latest := versions[len(versions)-1]
		if matchesQuery(&latest, query) {
			out = append(out, cloneRecord(latest))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// cloneRecord copies a record deeply enough that callers cannot mutate
// the catalog through it.
func cloneRecord(rec TreeRecord) TreeRecord {
	out := rec
	out.Tags = append([]string(nil), rec.Tags...)
	if rec.Definition != nil {
		clone := rec.Definition.Clone()
		out.Definition = &clone
	}
	return out
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)
