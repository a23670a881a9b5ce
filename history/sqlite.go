package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bramble-labs/bramble/snapshot"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteConfig configures the SQLite snapshot store.
type SQLiteConfig struct {
	// DSN is the database connection string.
	DSN string

	// Retention bounds stored history. MaxAge and MaxPerExecution are
	// enforced by a background pruner when either is set.
	Retention Retention
}

// SQLiteStore persists snapshots to a SQLite database. WAL mode keeps
// reads concurrent with the ticking writer.
type SQLiteStore struct {
	db   *sql.DB
	cfg  SQLiteConfig
	stop chan struct{}
	done chan struct{}
}

// NewSQLiteStore opens (or creates) a SQLite snapshot store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Retention.PruneInterval == 0 {
		cfg.Retention.PruneInterval = time.Hour
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	s := &SQLiteStore{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if cfg.Retention.MaxAge > 0 || cfg.Retention.MaxPerExecution > 0 {
		go s.pruneLoop()
	} else {
		close(s.done)
	}

	return s, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, snap *snapshot.ExecutionSnapshot) error {
	if snap == nil {
		return fmt.Errorf("history: nil snapshot")
	}
	if snap.ExecutionID == "" {
		return fmt.Errorf("history: snapshot without execution id")
	}
	if snap.TickCount < 1 {
		return fmt.Errorf("%w: tick %d", ErrInvalidRange, snap.TickCount)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("history: marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (execution_id, tick, captured_at, payload) VALUES (?, ?, ?, ?)`,
		snap.ExecutionID,
		snap.TickCount,
		snap.Timestamp.UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Tick implements Store.
func (s *SQLiteStore) Tick(ctx context.Context, executionID string, n int) (*snapshot.ExecutionSnapshot, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: tick %d", ErrInvalidRange, n)
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE execution_id = ? AND tick = ?`,
		executionID, n,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: execution %s has no tick %d", ErrHistoryUnavailable, executionID, n)
	}
	if err != nil {
		return nil, fmt.Errorf("history: tick: %w", err)
	}
	return decodeSnapshot(payload)
}

// Range implements Store.
func (s *SQLiteStore) Range(ctx context.Context, executionID string, from, to int) ([]*snapshot.ExecutionSnapshot, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshots WHERE execution_id = ? AND tick BETWEEN ? AND ? ORDER BY tick ASC`,
		executionID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("history: range: %w", err)
	}
	defer rows.Close()

	var out []*snapshot.ExecutionSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("history: scan snapshot: %w", err)
		}
		snap, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: range rows: %w", err)
	}

	if len(out) == 0 {
		known, err := s.executionKnown(ctx, executionID)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
		}
	}
	return out, nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, executionID string) (*snapshot.ExecutionSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE execution_id = ? ORDER BY tick DESC LIMIT 1`,
		executionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("history: latest: %w", err)
	}
	return decodeSnapshot(payload)
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, executionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE execution_id = ?`, executionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}
	return count, nil
}

// DeleteExecution implements Store.
func (s *SQLiteStore) DeleteExecution(ctx context.Context, executionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE execution_id = ?`, executionID,
	); err != nil {
		return fmt.Errorf("history: delete execution: %w", err)
	}
	return nil
}

// Executions returns distinct execution ids with stored history.
func (s *SQLiteStore) Executions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT execution_id FROM snapshots ORDER BY execution_id`)
	if err != nil {
		return nil, fmt.Errorf("history: executions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("history: scan execution id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Prune runs a single retention pass. Exported for testing.
func (s *SQLiteStore) Prune(ctx context.Context) error {
	if s.cfg.Retention.MaxAge > 0 {
		cutoff := time.Now().Add(-s.cfg.Retention.MaxAge).UTC().Format(time.RFC3339Nano)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE captured_at < ?`, cutoff,
		); err != nil {
			return fmt.Errorf("history: prune by age: %w", err)
		}
	}

	if s.cfg.Retention.MaxPerExecution > 0 {
		ids, err := s.Executions(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := s.db.ExecContext(ctx,
				`DELETE FROM snapshots WHERE execution_id = ? AND id NOT IN (
					SELECT id FROM snapshots WHERE execution_id = ? ORDER BY tick DESC LIMIT ?
				)`, id, id, s.cfg.Retention.MaxPerExecution,
			); err != nil {
				return fmt.Errorf("history: prune by count for %s: %w", id, err)
			}
		}
	}

	return nil
}

// Close stops the background pruner and closes the database.
func (s *SQLiteStore) Close() error {
	select {
	case <-s.stop:
		// Already closed.
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

func (s *SQLiteStore) pruneLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Retention.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.Prune(context.Background())
		}
	}
}

func (s *SQLiteStore) executionKnown(ctx context.Context, executionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM snapshots WHERE execution_id = ? LIMIT 1`, executionID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("history: execution lookup: %w", err)
	}
	return true, nil
}

func decodeSnapshot(payload string) (*snapshot.ExecutionSnapshot, error) {
	var snap snapshot.ExecutionSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("history: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
