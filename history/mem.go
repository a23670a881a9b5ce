package history

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bramble-labs/bramble/snapshot"
)

// MemStore keeps snapshots in memory, bounded per execution by
// Retention.MaxPerExecution (oldest evicted first). The zero retention
// keeps everything, which is only sensible for short debugging sessions.
type MemStore struct {
	mu    sync.RWMutex
	max   int
	execs map[string][]*snapshot.ExecutionSnapshot
}

// NewMemStore creates an in-memory snapshot store.
func NewMemStore(ret Retention) *MemStore {
	return &MemStore{
		max:   ret.MaxPerExecution,
		execs: make(map[string][]*snapshot.ExecutionSnapshot),
	}
}

// Append implements Store.
func (s *MemStore) Append(_ context.Context, snap *snapshot.ExecutionSnapshot) error {
	if snap == nil {
		return fmt.Errorf("history: nil snapshot")
	}
	if snap.ExecutionID == "" {
		return fmt.Errorf("history: snapshot without execution id")
	}
	if snap.TickCount < 1 {
		return fmt.Errorf("%w: tick %d", ErrInvalidRange, snap.TickCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.execs[snap.ExecutionID]
	if n := len(list); n > 0 && list[n-1].TickCount >= snap.TickCount {
		return fmt.Errorf("history: tick %d not after %d for execution %s",
			snap.TickCount, list[n-1].TickCount, snap.ExecutionID)
	}

	list = append(list, snap)
	if s.max > 0 && len(list) > s.max {
		copy(list, list[1:])
		list = list[:s.max]
	}
	s.execs[snap.ExecutionID] = list
	return nil
}

// Tick implements Store.
func (s *MemStore) Tick(_ context.Context, executionID string, n int) (*snapshot.ExecutionSnapshot, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: tick %d", ErrInvalidRange, n)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.execs[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}
	if snap := findTick(list, n); snap != nil {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: execution %s has no tick %d", ErrHistoryUnavailable, executionID, n)
}

// Range implements Store.
func (s *MemStore) Range(_ context.Context, executionID string, from, to int) ([]*snapshot.ExecutionSnapshot, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.execs[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}

	start := sort.Search(len(list), func(i int) bool { return list[i].TickCount >= from })
	var out []*snapshot.ExecutionSnapshot
	for i := start; i < len(list) && list[i].TickCount <= to; i++ {
		out = append(out, list[i])
	}
	return out, nil
}

// Latest implements Store.
func (s *MemStore) Latest(_ context.Context, executionID string) (*snapshot.ExecutionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.execs[executionID]
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}
	return list[len(list)-1], nil
}

// Count implements Store.
func (s *MemStore) Count(_ context.Context, executionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.execs[executionID]
	if !ok {
		return 0, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}
	return len(list), nil
}

// DeleteExecution implements Store.
func (s *MemStore) DeleteExecution(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.execs, executionID)
	return nil
}

// findTick locates tick n in an ascending snapshot list.
func findTick(list []*snapshot.ExecutionSnapshot, n int) *snapshot.ExecutionSnapshot {
	i := sort.Search(len(list), func(i int) bool { return list[i].TickCount >= n })
	if i < len(list) && list[i].TickCount == n {
		return list[i]
	}
	return nil
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)
