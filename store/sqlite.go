package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bramble-labs/bramble/tree"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteConfig configures the SQLite tree catalog.
type SQLiteConfig struct {
	// DSN is the database connection string.
	DSN string
}

// SQLiteStore persists the catalog to a SQLite database. WAL mode keeps
// catalog reads concurrent with saves from the watcher and the API.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed catalog.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("store: sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]TreeRecord, error) {
	records, err := s.latestVersions(ctx)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, rec := range records {
		if matchesFilter(&rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string, version int) (*TreeRecord, error) {
	var row *sql.Row
	if version <= 0 {
		row = s.db.QueryRowContext(ctx, `
SELECT tree_id, version, name, description, tags, status, definition, created_at, updated_at
FROM tree_versions
WHERE tree_id = ?
ORDER BY version DESC
LIMIT 1`, id)
	} else {
		row = s.db.QueryRowContext(ctx, `
SELECT tree_id, version, name, description, tags, status, definition, created_at, updated_at
FROM tree_versions
WHERE tree_id = ? AND version = ?`, id, version)
	}

	rec, err := scanTreeRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		if version <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, id)
		}
		return nil, fmt.Errorf("%w: %s version %d", ErrTreeNotFound, id, version)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, def *tree.TreeDefinition) (*TreeRecord, error) {
	rec, err := recordFromDefinition(def)
	if err != nil {
		return nil, err
	}

	definition, err := json.Marshal(rec.Definition)
	if err != nil {
		return nil, fmt.Errorf("store: marshal definition: %w", err)
	}
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return nil, fmt.Errorf("store: marshal tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin save: %w", err)
	}
	defer tx.Rollback()

	var latest sql.NullInt64
	var firstSaved sql.NullString
	err = tx.QueryRowContext(ctx, `
SELECT MAX(version), MIN(created_at) FROM tree_versions WHERE tree_id = ?`,
		rec.ID,
	).Scan(&latest, &firstSaved)
	if err != nil {
		return nil, fmt.Errorf("store: resolve latest version: %w", err)
	}

	now := time.Now().UTC()
	rec.Version = int(latest.Int64) + 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if firstSaved.Valid {
		created, err := time.Parse(time.RFC3339Nano, firstSaved.String)
		if err != nil {
			return nil, fmt.Errorf("store: parse created_at: %w", err)
		}
		rec.CreatedAt = created
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE tree_versions SET status = ? WHERE tree_id = ? AND status = ?`,
		string(StatusArchived), rec.ID, string(StatusActive),
	); err != nil {
		return nil, fmt.Errorf("store: archive previous versions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO tree_versions (tree_id, version, name, description, tags, status, definition, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Version,
		rec.Name,
		rec.Description,
		string(tags),
		string(rec.Status),
		string(definition),
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("store: insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit save: %w", err)
	}
	return &rec, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string, version int) error {
	var (
		res sql.Result
		err error
	)
	if version <= 0 {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM tree_versions WHERE tree_id = ?`, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM tree_versions WHERE tree_id = ? AND version = ?`, id, version)
	}
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete affected rows: %w", err)
	}
	if affected == 0 {
		if version <= 0 {
			return fmt.Errorf("%w: %s", ErrTreeNotFound, id)
		}
		return fmt.Errorf("%w: %s version %d", ErrTreeNotFound, id, version)
	}
	return nil
}

// ListVersions implements Store.
func (s *SQLiteStore) ListVersions(ctx context.Context, id string) ([]TreeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT tree_id, version, name, description, tags, status, definition, created_at, updated_at
FROM tree_versions
WHERE tree_id = ?
ORDER BY version ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("store: list versions: %w", err)
	}
	defer rows.Close()

	records, err := collectTreeRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	return records, nil
}

// Search implements Store.
func (s *SQLiteStore) Search(ctx context.Context, query string) ([]TreeRecord, error) {
	records, err := s.latestVersions(ctx)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, rec := range records {
		if matchesQuery(&rec, query) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// latestVersions returns the newest version of every tree ordered by id.
// Tag and query filters are applied in Go; catalogs stay small enough
// that scanning beats bespoke SQL for JSON-encoded tags.
func (s *SQLiteStore) latestVersions(ctx context.Context) ([]TreeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.tree_id, t.version, t.name, t.description, t.tags, t.status, t.definition, t.created_at, t.updated_at
FROM tree_versions t
JOIN (
	SELECT tree_id, MAX(version) AS version
	FROM tree_versions
	GROUP BY tree_id
) latest ON t.tree_id = latest.tree_id AND t.version = latest.version
ORDER BY t.tree_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()
	return collectTreeRecords(rows)
}

func collectTreeRecords(rows *sql.Rows) ([]TreeRecord, error) {
	var records []TreeRecord
	for rows.Next() {
		rec, err := scanTreeRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan rows: %w", err)
	}
	return records, nil
}

type recordScanner interface {
	Scan(dest ...any) error
}

func scanTreeRecord(scanner recordScanner) (TreeRecord, error) {
	var (
		rec        TreeRecord
		status     string
		tagsRaw    string
		defRaw     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&rec.ID, &rec.Version, &rec.Name, &rec.Description,
		&tagsRaw, &status, &defRaw, &createdRaw, &updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TreeRecord{}, err
		}
		return TreeRecord{}, fmt.Errorf("store: scan record: %w", err)
	}

	rec.Status = TreeStatus(status)
	if err := json.Unmarshal([]byte(tagsRaw), &rec.Tags); err != nil {
		return TreeRecord{}, fmt.Errorf("store: unmarshal tags: %w", err)
	}
	var def tree.TreeDefinition
	if err := json.Unmarshal([]byte(defRaw), &def); err != nil {
		return TreeRecord{}, fmt.Errorf("store: unmarshal definition: %w", err)
	}
	rec.Definition = &def

	created, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return TreeRecord{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedRaw)
	if err != nil {
		return TreeRecord{}, fmt.Errorf("store: parse updated_at: %w", err)
	}
	rec.CreatedAt = created
	rec.UpdatedAt = updated
	return rec, nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
