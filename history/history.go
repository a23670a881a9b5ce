// Package history stores per-tick execution snapshots and answers
// point, range, and diff queries over them. Ticks are 1-based and
// strictly increasing within an execution; gaps are legal because
// callers may capture only some ticks.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bramble-labs/bramble/snapshot"
)

var (
	// ErrHistoryUnavailable is returned when history is queried for an
	// execution that has no captured snapshots, either because the
	// execution is unknown or because capture was never enabled.
	ErrHistoryUnavailable = errors.New("history not available")

	// ErrInvalidRange is returned when a tick bound is below 1 or a
	// range start exceeds its end.
	ErrInvalidRange = errors.New("invalid history range")
)

// DefaultMaxPerExecution bounds snapshots kept per execution when the
// caller does not configure retention.
const DefaultMaxPerExecution = 1024

// Retention bounds how much history a store keeps.
type Retention struct {
	// MaxPerExecution keeps at most this many snapshots per execution
	// (0 = unlimited).
	MaxPerExecution int

	// MaxAge deletes snapshots older than this duration (0 = no age
	// pruning). Only stores with a pruner honor it.
	MaxAge time.Duration

	// PruneInterval is how often background pruning runs (default 1 hour).
	PruneInterval time.Duration
}

// DefaultRetention returns the retention applied when none is configured.
func DefaultRetention() Retention {
	return Retention{
		MaxPerExecution: DefaultMaxPerExecution,
		PruneInterval:   time.Hour,
	}
}

// Store persists execution snapshots indexed by tick number.
type Store interface {
	// Append stores a snapshot. Within one execution, ticks must be
	// appended in strictly increasing order.
	Append(ctx context.Context, snap *snapshot.ExecutionSnapshot) error

	// Tick returns the snapshot captured at tick n.
	Tick(ctx context.Context, executionID string, n int) (*snapshot.ExecutionSnapshot, error)

	// Range returns snapshots with from <= tick <= to, in ascending
	// tick order. Both bounds are inclusive.
	Range(ctx context.Context, executionID string, from, to int) ([]*snapshot.ExecutionSnapshot, error)

	// Latest returns the most recently captured snapshot.
	Latest(ctx context.Context, executionID string) (*snapshot.ExecutionSnapshot, error)

	// Count returns how many snapshots are currently retained.
	Count(ctx context.Context, executionID string) (int, error)

	// DeleteExecution drops all snapshots for an execution.
	DeleteExecution(ctx context.Context, executionID string) error
}

// Diff fetches the snapshots at ticks a and b and returns the entries
// that changed between them.
func Diff(ctx context.Context, store Store, executionID string, a, b int) ([]snapshot.Change, error) {
	if err := checkRange(a, b); err != nil {
		return nil, err
	}
	first, err := store.Tick(ctx, executionID, a)
	if err != nil {
		return nil, err
	}
	second, err := store.Tick(ctx, executionID, b)
	if err != nil {
		return nil, err
	}
	return snapshot.Diff(first, second), nil
}

// checkRange validates inclusive 1-based tick bounds.
func checkRange(from, to int) error {
	if from < 1 || to < 1 {
		return fmt.Errorf("%w: ticks are 1-based, got %d..%d", ErrInvalidRange, from, to)
	}
	if from > to {
		return fmt.Errorf("%w: from %d > to %d", ErrInvalidRange, from, to)
	}
	return nil
}
