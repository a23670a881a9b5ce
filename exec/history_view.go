package exec

import (
	"context"
	"fmt"

	"github.com/bramble-labs/bramble/history"
	"github.com/bramble-labs/bramble/snapshot"
)

// HistoryView scopes a history store to one execution so callers query
// ticks without carrying the execution id around. A view over an instance
// with no history store answers every query with ErrHistoryUnavailable.
type HistoryView struct {
	executionID string
	store       history.Store
}

// ExecutionID returns the execution this view reads.
func (v *HistoryView) ExecutionID() string { return v.executionID }

// Tick returns the snapshot captured at tick n.
func (v *HistoryView) Tick(ctx context.Context, n int) (*snapshot.ExecutionSnapshot, error) {
	if v.store == nil {
		return nil, v.noStore()
	}
	return v.store.Tick(ctx, v.executionID, n)
}

// Range returns snapshots with from <= tick <= to, in ascending order.
func (v *HistoryView) Range(ctx context.Context, from, to int) ([]*snapshot.ExecutionSnapshot, error) {
	if v.store == nil {
		return nil, v.noStore()
	}
	return v.store.Range(ctx, v.executionID, from, to)
}

// Latest returns the most recently captured snapshot.
func (v *HistoryView) Latest(ctx context.Context) (*snapshot.ExecutionSnapshot, error) {
	if v.store == nil {
		return nil, v.noStore()
	}
	return v.store.Latest(ctx, v.executionID)
}

// Count returns how many snapshots the execution has retained.
func (v *HistoryView) Count(ctx context.Context) (int, error) {
	if v.store == nil {
		return 0, v.noStore()
	}
	return v.store.Count(ctx, v.executionID)
}

// Diff returns the entries that changed between ticks a and b.
func (v *HistoryView) Diff(ctx context.Context, a, b int) ([]snapshot.Change, error) {
	if v.store == nil {
		return nil, v.noStore()
	}
	return history.Diff(ctx, v.store, v.executionID, a, b)
}

func (v *HistoryView) noStore() error {
	return fmt.Errorf("%w: execution %s has no history store", history.ErrHistoryUnavailable, v.executionID)
}
