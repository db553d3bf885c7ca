package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/untoldecay/loom/internal/types"
)

// setupTestDB creates a fresh file-backed store in a temp dir. File-backed so
// each test gets an isolated database and the WAL path is exercised.
func setupTestDB(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// mustCreate inserts an item and fails the test on error.
func mustCreate(t *testing.T, store *Store, item *types.WorkItem) *types.WorkItem {
	t.Helper()
	if err := store.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("failed to create item %q: %v", item.Title, err)
	}
	return item
}

// mustCreateChild inserts a child under the given parent.
func mustCreateChild(t *testing.T, store *Store, parentID, title string) *types.WorkItem {
	t.Helper()
	return mustCreate(t, store, &types.WorkItem{ParentID: &parentID, Title: title})
}

func TestNewAppliesSchemaAndMigrations(t *testing.T) {
	store := setupTestDB(t)

	var n int
	err := store.UnderlyingDB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n)
	if err != nil {
		t.Fatalf("schema_migrations missing: %v", err)
	}
	if n != len(migrationsList) {
		t.Errorf("expected %d applied migrations, got %d", len(migrationsList), n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	if err := store.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
