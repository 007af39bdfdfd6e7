// Package migrations applies versioned schema changes to the state database.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNewerSchema means the database was migrated by a newer seoloop than
// the one opening it.
var ErrNewerSchema = errors.New("database schema is newer than this binary")

// Migration is one versioned schema change. Down may be empty for changes
// that cannot be reverted.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Manager applies a set of migrations in version order.
type Manager struct {
	migrations []Migration
}

// NewManager creates a manager for the given migrations, in any order.
func NewManager(migrations ...Migration) *Manager {
	m := &Manager{}
	for _, mig := range migrations {
		m.Register(mig)
	}
	return m
}

// Register adds a migration.
func (m *Manager) Register(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

// ordered returns the migrations sorted by version, rejecting duplicates.
func (m *Manager) ordered() ([]Migration, error) {
	out := append([]Migration(nil), m.migrations...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := range out {
		if out[i].Version <= 0 {
			return nil, fmt.Errorf("migration %q has non-positive version %d", out[i].Description, out[i].Version)
		}
		if i > 0 && out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d (%q, %q)", out[i].Version, out[i-1].Description, out[i].Description)
		}
	}
	return out, nil
}

// Latest returns the highest registered version.
func (m *Manager) Latest() int {
	latest := 0
	for _, mig := range m.migrations {
		if mig.Version > latest {
			latest = mig.Version
		}
	}
	return latest
}

// Apply runs every migration newer than the database, each in its own
// transaction, and returns the resulting version. A database already past
// Latest is refused with ErrNewerSchema.
func (m *Manager) Apply(ctx context.Context, db *sql.DB) (int, error) {
	ordered, err := m.ordered()
	if err != nil {
		return 0, err
	}
	if err := createVersionTable(ctx, db); err != nil {
		return 0, fmt.Errorf("failed to create version table: %w", err)
	}

	current, err := Version(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if latest := m.Latest(); current > latest {
		return current, fmt.Errorf("%w: database at version %d, binary knows %d", ErrNewerSchema, current, latest)
	}

	for _, mig := range ordered {
		if mig.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, mig); err != nil {
			return current, fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Description, err)
		}
		current = mig.Version
	}
	return current, nil
}

// Rollback reverts the most recently applied migration.
func (m *Manager) Rollback(ctx context.Context, db *sql.DB) error {
	current, err := Version(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if current == 0 {
		return errors.New("no migrations to roll back")
	}

	for _, mig := range m.migrations {
		if mig.Version != current {
			continue
		}
		if strings.TrimSpace(mig.Down) == "" {
			return fmt.Errorf("migration %d (%s) cannot be rolled back", mig.Version, mig.Description)
		}
		if err := rollbackMigration(ctx, db, mig); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", mig.Version, err)
		}
		return nil
	}
	return fmt.Errorf("migration %d not registered", current)
}

// Version returns the highest applied migration version (0 for a fresh database).
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func applyMigration(ctx context.Context, db *sql.DB, mig Migration) error {
	return inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
			return fmt.Errorf("up: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
			mig.Version, mig.Description, time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

func rollbackMigration(ctx context.Context, db *sql.DB, mig Migration) error {
	return inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mig.Down); err != nil {
			return fmt.Errorf("down: %w", err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", mig.Version)
		return err
	})
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
