package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/graph"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/types"
)

const depColumns = `id, from_item_id, to_item_id, type, unblock_at, created_at`

func scanDep(row rowScanner) (*types.Dependency, error) {
	var d types.Dependency
	var unblockAt sql.NullString
	if err := row.Scan(&d.ID, &d.FromItemID, &d.ToItemID, &d.Type, &unblockAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	if unblockAt.Valid {
		d.UnblockAt = types.Role(unblockAt.String)
	}
	return &d, nil
}

func scanDeps(rows *sql.Rows) ([]*types.Dependency, error) {
	var deps []*types.Dependency
	for rows.Next() {
		d, err := scanDep(rows)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// createDependencies validates and inserts a batch of edges atomically with
// respect to cycle safety: the whole batch is folded into the existing graph
// before any row is written, so a cycle formed only by the batch is caught.
func createDependencies(ctx context.Context, q dbtx, deps []*types.Dependency) error {
	if len(deps) == 0 {
		return nil
	}
	for _, d := range deps {
		if err := d.Validate(); err != nil {
			return errs.Validation("%v", err)
		}
		if _, err := getItem(ctx, q, d.FromItemID); err != nil {
			return err
		}
		if _, err := getItem(ctx, q, d.ToItemID); err != nil {
			return err
		}
	}

	existing, err := allDependencies(ctx, q)
	if err != nil {
		return err
	}
	if err := graph.CheckAcyclic(existing, deps); err != nil {
		return err
	}

	// Duplicates fail before the first insert, against existing rows and
	// within the batch itself.
	seen := make(map[string]bool, len(existing)+len(deps))
	for _, d := range existing {
		seen[d.FromItemID+"\x00"+d.ToItemID+"\x00"+string(d.Type)] = true
	}
	for _, d := range deps {
		key := d.FromItemID + "\x00" + d.ToItemID + "\x00" + string(d.Type)
		if seen[key] {
			return errs.Duplicate("dependency %s -%s-> %s already exists", d.FromItemID, d.Type, d.ToItemID)
		}
		seen[key] = true
	}

	for _, d := range deps {
		var unblockAt any
		if d.UnblockAt != "" {
			unblockAt = string(d.UnblockAt)
		}
		d.CreatedAt = time.Now().UTC()
		res, err := q.ExecContext(ctx, `
			INSERT INTO dependencies (from_item_id, to_item_id, type, unblock_at, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, d.FromItemID, d.ToItemID, string(d.Type), unblockAt, d.CreatedAt)
		if err != nil {
			if isUniqueConstraintError(err) {
				return errs.Duplicate("dependency %s -%s-> %s already exists", d.FromItemID, d.Type, d.ToItemID)
			}
			return errs.Database(err, "failed to insert dependency %s -> %s", d.FromItemID, d.ToItemID)
		}
		if id, err := res.LastInsertId(); err == nil {
			d.ID = id
		}
	}
	return nil
}

func dependenciesOf(ctx context.Context, q dbtx, itemID string) ([]*types.Dependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE from_item_id = ? OR to_item_id = ?
		ORDER BY id
	`, itemID, itemID)
	if err != nil {
		return nil, errs.Database(err, "failed to list dependencies of %s", itemID)
	}
	defer func() { _ = rows.Close() }()
	deps, err := scanDeps(rows)
	return deps, dberr(err, "failed to scan dependencies of %s", itemID)
}

func allDependencies(ctx context.Context, q dbtx) ([]*types.Dependency, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+depColumns+` FROM dependencies ORDER BY id`)
	if err != nil {
		return nil, errs.Database(err, "failed to list dependencies")
	}
	defer func() { _ = rows.Close() }()
	deps, err := scanDeps(rows)
	return deps, dberr(err, "failed to scan dependencies")
}

// CreateDependencies inserts a batch of edges after cycle checking. The batch
// runs in one transaction: a failing edge rolls back the whole batch.
func (s *Store) CreateDependencies(ctx context.Context, deps []*types.Dependency) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateDependencies(ctx, deps)
	})
}

// DeleteDependency removes one edge identified by its endpoints and type.
func (s *Store) DeleteDependency(ctx context.Context, fromID, toID string, depType types.DependencyType) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM dependencies WHERE from_item_id = ? AND to_item_id = ? AND type = ?
	`, fromID, toID, string(depType))
	if err != nil {
		return errs.Database(err, "failed to delete dependency %s -> %s", fromID, toID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Database(err, "failed to read delete result")
	}
	if affected == 0 {
		return errs.NotFound("dependency", fromID+" -"+string(depType)+"-> "+toID)
	}
	return nil
}

// DependenciesOf returns all edges touching an item, either direction.
func (s *Store) DependenciesOf(ctx context.Context, itemID string) ([]*types.Dependency, error) {
	return dependenciesOf(ctx, s.db, itemID)
}

// DependenciesAmong returns the edges whose both endpoints are in the set.
func (s *Store) DependenciesAmong(ctx context.Context, itemIDs []string) ([]*types.Dependency, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	inSet := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		inSet[id] = true
	}
	all, err := allDependencies(ctx, s.db)
	if err != nil {
		return nil, err
	}
	var deps []*types.Dependency
	for _, d := range all {
		if inSet[d.FromItemID] && inSet[d.ToItemID] {
			deps = append(deps, d)
		}
	}
	return deps, nil
}

// AllDependencies returns every edge in the store.
func (s *Store) AllDependencies(ctx context.Context) ([]*types.Dependency, error) {
	return allDependencies(ctx, s.db)
}
