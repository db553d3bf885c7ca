// Package storage defines the interface for work-item storage backends.
package storage

import (
	"context"
	"database/sql"

	"github.com/untoldecay/loom/internal/types"
)

// Transaction exposes the subset of Store operations that execute within a
// single database transaction. All multi-write services run inside
// RunInTransaction so a failure rolls the whole operation back.
//
// SQLite specifics: transactions open with BEGIN IMMEDIATE to acquire the
// write lock early, serializing concurrent writers instead of deadlocking
// them.
type Transaction interface {
	// Items
	CreateItem(ctx context.Context, item *types.WorkItem) error
	GetItem(ctx context.Context, id string) (*types.WorkItem, error)
	UpdateItem(ctx context.Context, id string, update *types.ItemUpdate) (*types.WorkItem, error)
	SetItemRole(ctx context.Context, id string, role, previousRole types.Role, statusLabel string) (*types.WorkItem, error)
	DeleteItem(ctx context.Context, id string, recursive bool) error
	ChildRoleCounts(ctx context.Context, parentID string) (types.RoleCounts, error)

	// Dependencies
	CreateDependencies(ctx context.Context, deps []*types.Dependency) error
	DependenciesOf(ctx context.Context, itemID string) ([]*types.Dependency, error)
	AllDependencies(ctx context.Context) ([]*types.Dependency, error)

	// Notes
	UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error)
	NotesFor(ctx context.Context, itemID string) ([]*types.Note, error)

	// Audit
	RecordTransition(ctx context.Context, tr *types.RoleTransition) error

	// Blocking
	OpenBlockers(ctx context.Context, itemID string) ([]types.BlockerInfo, error)
	NewlyUnblocked(ctx context.Context, blockerID string) ([]*types.WorkItem, error)
}

// Store is the interface for work-item storage backends. Lookups fail with
// RESOURCE_NOT_FOUND; mutations fail with VALIDATION_ERROR, CONFLICT_ERROR or
// DATABASE_ERROR. Failures are tagged error values, never panics.
type Store interface {
	// Items
	CreateItem(ctx context.Context, item *types.WorkItem) error
	GetItem(ctx context.Context, id string) (*types.WorkItem, error)
	GetItems(ctx context.Context, ids []string) ([]*types.WorkItem, error)
	UpdateItem(ctx context.Context, id string, update *types.ItemUpdate) (*types.WorkItem, error)
	DeleteItem(ctx context.Context, id string, recursive bool) error
	ListChildren(ctx context.Context, parentID string) ([]*types.WorkItem, error)
	ListRoots(ctx context.Context) ([]*types.WorkItem, error)
	FindItems(ctx context.Context, filter types.ItemFilter) (*types.SearchResult, error)
	CountItems(ctx context.Context, filter types.ItemFilter) (int, error)
	ChildRoleCounts(ctx context.Context, parentID string) (types.RoleCounts, error)
	AncestorChain(ctx context.Context, id string) ([]*types.WorkItem, error)
	Subtree(ctx context.Context, rootID string) ([]*types.WorkItem, error)

	// Dependencies
	CreateDependencies(ctx context.Context, deps []*types.Dependency) error
	DeleteDependency(ctx context.Context, fromID, toID string, depType types.DependencyType) error
	DependenciesOf(ctx context.Context, itemID string) ([]*types.Dependency, error)
	DependenciesAmong(ctx context.Context, itemIDs []string) ([]*types.Dependency, error)
	AllDependencies(ctx context.Context) ([]*types.Dependency, error)

	// Blocking
	OpenBlockers(ctx context.Context, itemID string) ([]types.BlockerInfo, error)
	BlockedItems(ctx context.Context) ([]*types.BlockedItem, error)
	ActionableItems(ctx context.Context, limit int) ([]*types.WorkItem, error)

	// Notes
	UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error)
	DeleteNote(ctx context.Context, id int64) error
	FindNotes(ctx context.Context, filter types.NoteFilter) ([]*types.Note, error)

	// Audit
	RecordTransition(ctx context.Context, tr *types.RoleTransition) error
	TransitionsFor(ctx context.Context, entityID string, limit int) ([]*types.RoleTransition, error)

	// Statistics
	Statistics(ctx context.Context) (*types.Statistics, error)

	// Transactions
	//
	// RunInTransaction executes fn within one database transaction:
	// commit on nil return, rollback on error or panic.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
	Path() string

	// UnderlyingDB exposes the raw connection pool for migration tooling.
	UnderlyingDB() *sql.DB
}

// Config holds database configuration.
type Config struct {
	Path string // database file path, or ":memory:"
}
