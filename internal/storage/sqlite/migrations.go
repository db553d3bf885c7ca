// Package sqlite - database migrations
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/untoldecay/loom/internal/errs"
)

// Migration represents a single database migration. Migrations must be
// idempotent: the manager records applied names in schema_migrations, but a
// re-run after manual surgery must not fail.
type Migration struct {
	Name string
	Func func(context.Context, *sql.DB) error
}

// migrationsList is the ordered list of migrations run during initialization,
// after the base schema.
var migrationsList = []Migration{
	{"notes_role_index", migrateNotesRoleIndex},
	{"transitions_verb_index", migrateTransitionsVerbIndex},
	{"items_role_changed_index", migrateItemsRoleChangedIndex},
}

// MigrationInfo contains metadata about a migration for inspection.
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns all registered migrations with descriptions.
func ListMigrations() []MigrationInfo {
	descriptions := map[string]string{
		"notes_role_index":         "Adds (item_id, role) index for gate evaluation lookups",
		"transitions_verb_index":   "Adds (entity_id, verb) index for audit queries",
		"items_role_changed_index": "Adds role_changed_at index for time-window search",
	}
	result := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		result[i] = MigrationInfo{Name: m.Name, Description: descriptions[m.Name]}
	}
	return result
}

// RunMigrations applies all pending migrations in order, recording each in
// the schema_migrations version table. A migration failure is fatal to
// startup; the caller exits after logging.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return errs.Database(err, "failed to create schema_migrations table")
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return errs.Database(err, "failed to read schema_migrations")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return errs.Database(err, "failed to scan schema_migrations")
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return errs.Database(err, "failed to iterate schema_migrations")
	}
	_ = rows.Close()

	for _, m := range migrationsList {
		if applied[m.Name] {
			continue
		}
		if err := m.Func(ctx, db); err != nil {
			return errs.Database(err, "migration %s failed", m.Name)
		}
		if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations (name) VALUES (?)`, m.Name); err != nil {
			return errs.Database(err, "failed to record migration %s", m.Name)
		}
		slog.Debug("applied migration", "name", m.Name)
	}
	return nil
}

func execAll(ctx context.Context, db *sql.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%q: %w", stmt, err)
		}
	}
	return nil
}

func migrateNotesRoleIndex(ctx context.Context, db *sql.DB) error {
	return execAll(ctx, db,
		`CREATE INDEX IF NOT EXISTS idx_notes_item_role ON notes(item_id, role)`)
}

func migrateTransitionsVerbIndex(ctx context.Context, db *sql.DB) error {
	return execAll(ctx, db,
		`CREATE INDEX IF NOT EXISTS idx_transitions_entity_verb ON role_transitions(entity_id, verb)`)
}

func migrateItemsRoleChangedIndex(ctx context.Context, db *sql.DB) error {
	return execAll(ctx, db,
		`CREATE INDEX IF NOT EXISTS idx_items_role_changed_at ON items(role_changed_at)`)
}
