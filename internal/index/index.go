// Package index provides an ephemeral, per-run SQLite index of
// destination paths, used by the Planner to detect collisions both
// against files already on disk and against destinations already
// claimed earlier in the same plan. The index is rebuilt from scratch
// on every Plan invocation and discarded afterward — it never
// persists classification decisions or learns across runs.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"organizer/internal/index/migrations"
)

// Index tracks destination paths claimed during one planning pass.
type Index struct {
	db *sql.DB
}

// Open creates an in-memory SQLite-backed index and applies its schema.
// Each Plan invocation should call Open once and Close it when done;
// the index is never written to a file on disk.
func Open() (*Index, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Seed bulk-loads paths already present on disk under the destination
// base root, so the Planner can detect collisions with pre-existing
// files before it claims any new destination.
func (idx *Index) Seed(ctx context.Context, paths []string) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting seed transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO destinations (path) VALUES (?)")
	if err != nil {
		return fmt.Errorf("preparing seed statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("seeding path %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// Exists reports whether path is already claimed, by a seeded
// pre-existing file or by an earlier Reserve call in this run.
func (idx *Index) Exists(ctx context.Context, path string) (bool, error) {
	var found string
	err := idx.db.QueryRowContext(ctx, "SELECT path FROM destinations WHERE path = ?", path).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking destination %s: %w", path, err)
	}
	return true, nil
}

// Reserve claims path for the current plan. It returns ErrAlreadyClaimed
// if path was already reserved or seeded as pre-existing.
func (idx *Index) Reserve(ctx context.Context, path string) error {
	_, err := idx.db.ExecContext(ctx, "INSERT INTO destinations (path) VALUES (?)", path)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("reserving destination %s: %w", path, err)
	}
	return nil
}

// ErrAlreadyClaimed is returned by Reserve when path is already taken.
var ErrAlreadyClaimed = errors.New("destination already claimed")

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Close releases the in-memory database. Since the index is never
// written to disk, Close is equivalent to discarding it.
func (idx *Index) Close() error {
	return idx.db.Close()
}
