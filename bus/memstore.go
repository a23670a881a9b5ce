package bus

import (
	"context"
	"sync"
)

// DefaultMemEventStoreCapacity bounds the replay ring when no capacity is
// given.
const DefaultMemEventStoreCapacity = 1024

// MemEventStore is a thread-safe in-memory event store backed by a fixed
// ring: once full, each append evicts the oldest event. Bounded so a
// long-running daemon cannot grow without limit on tick events.
type MemEventStore struct {
	mu   sync.RWMutex
	buf  []Event
	head int
	n    int
}

// NewMemEventStore creates a ring holding the most recent capacity events.
// Non-positive capacity uses DefaultMemEventStoreCapacity.
func NewMemEventStore(capacity int) *MemEventStore {
	if capacity <= 0 {
		capacity = DefaultMemEventStoreCapacity
	}
	return &MemEventStore{buf: make([]Event, capacity)}
}

// Append stores an event, evicting the oldest when the ring is full.
func (s *MemEventStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n < len(s.buf) {
		s.buf[(s.head+s.n)%len(s.buf)] = event
		s.n++
		return nil
	}
	s.buf[s.head] = event
	s.head = (s.head + 1) % len(s.buf)
	return nil
}

// List returns retained events oldest-first, filtered per EventStore.
func (s *MemEventStore) List(_ context.Context, executionID string, afterSeq uint64, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Event
	for i := 0; i < s.n; i++ {
		e := s.buf[(s.head+i)%len(s.buf)]
		if executionID != "" && e.ExecutionID != executionID {
			continue
		}
		if afterSeq > 0 && e.Seq <= afterSeq {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// LatestSeq returns the highest retained Seq matching executionID.
func (s *MemEventStore) LatestSeq(_ context.Context, executionID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxSeq uint64
	for i := 0; i < s.n; i++ {
		e := s.buf[(s.head+i)%len(s.buf)]
		if executionID != "" && e.ExecutionID != executionID {
			continue
		}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	return maxSeq, nil
}

// Len returns how many events the ring currently holds.
func (s *MemEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// Compile-time interface check.
var _ EventStore = (*MemEventStore)(nil)
