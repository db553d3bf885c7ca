package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

const itemColumns = `id, parent_id, depth, title, summary, description, role, status_label,
	previous_role, priority, complexity, requires_verification, metadata, tags,
	created_at, modified_at, role_changed_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*types.WorkItem, error) {
	var it types.WorkItem
	var parentID sql.NullString
	var requiresVerification int
	err := row.Scan(
		&it.ID, &parentID, &it.Depth, &it.Title, &it.Summary, &it.Description,
		&it.Role, &it.StatusLabel, &it.PreviousRole, &it.Priority, &it.Complexity,
		&requiresVerification, &it.Metadata, &it.Tags,
		&it.CreatedAt, &it.ModifiedAt, &it.RoleChangedAt, &it.Version,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		it.ParentID = &parentID.String
	}
	it.RequiresVerification = requiresVerification != 0
	return &it, nil
}

func scanItems(rows *sql.Rows) ([]*types.WorkItem, error) {
	var items []*types.WorkItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// createItem inserts one item, assigning an ID and depth from its parent.
func createItem(ctx context.Context, q dbtx, item *types.WorkItem) error {
	if item.ParentID != nil && *item.ParentID != "" {
		parent, err := getItem(ctx, q, *item.ParentID)
		if err != nil {
			return err
		}
		item.Depth = parent.Depth + 1
		if item.Depth > types.MaxDepth {
			return errs.Validation("cannot nest below depth %d (parent %s is at depth %d)",
				types.MaxDepth, parent.ID, parent.Depth)
		}
	} else {
		item.ParentID = nil
		item.Depth = 0
	}

	if item.Role == "" {
		item.Role = types.RoleQueue
	}
	if item.Priority == "" {
		item.Priority = types.PriorityMedium
	}
	if item.Complexity == 0 {
		item.Complexity = 5
	}
	if err := item.Validate(); err != nil {
		return errs.Validation("%v", err)
	}

	if item.ID == "" {
		var err error
		if item.ParentID != nil {
			item.ID, err = nextChildID(ctx, q, *item.ParentID)
		} else {
			item.ID, err = generateRootID(ctx, q, item.Title)
		}
		if err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.ModifiedAt = now
	item.RoleChangedAt = now
	item.Version = 1

	requiresVerification := 0
	if item.RequiresVerification {
		requiresVerification = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO items (
			id, parent_id, depth, title, summary, description, role, status_label,
			previous_role, priority, complexity, requires_verification, metadata, tags,
			created_at, modified_at, role_changed_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.ParentID, item.Depth, item.Title, item.Summary, item.Description,
		item.Role, item.StatusLabel, item.PreviousRole, item.Priority, item.Complexity,
		requiresVerification, item.Metadata, item.Tags,
		item.CreatedAt, item.ModifiedAt, item.RoleChangedAt, item.Version,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errs.Duplicate("item %s already exists", item.ID)
		}
		return errs.Database(err, "failed to insert item %s", item.ID)
	}
	return nil
}

func getItem(ctx context.Context, q dbtx, id string) (*types.WorkItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("item", id)
	}
	if err != nil {
		return nil, errs.Database(err, "failed to get item %s", id)
	}
	return it, nil
}

// updateItem applies a partial update with an optimistic version check. When
// the caller's version no longer matches, the update fails with a conflict
// carrying the server's current version.
func updateItem(ctx context.Context, q dbtx, id string, update *types.ItemUpdate) (*types.WorkItem, error) {
	if update.Empty() {
		return getItem(ctx, q, id)
	}
	if update.Priority != nil && !update.Priority.IsValid() {
		return nil, errs.Validation("invalid priority: %s", *update.Priority)
	}
	if update.Complexity != nil && (*update.Complexity < 1 || *update.Complexity > 10) {
		return nil, errs.Validation("complexity must be between 1 and 10 (got %d)", *update.Complexity)
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, errs.Validation("title cannot be blank")
	}

	sets := []string{"modified_at = ?", "version = version + 1"}
	args := []any{time.Now().UTC()}
	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Summary != nil {
		add("summary", *update.Summary)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.StatusLabel != nil {
		add("status_label", *update.StatusLabel)
	}
	if update.Priority != nil {
		add("priority", string(*update.Priority))
	}
	if update.Complexity != nil {
		add("complexity", *update.Complexity)
	}
	if update.RequiresVerification != nil {
		v := 0
		if *update.RequiresVerification {
			v = 1
		}
		add("requires_verification", v)
	}
	if update.Metadata != nil {
		add("metadata", *update.Metadata)
	}
	if update.Tags != nil {
		add("tags", *update.Tags)
	}

	query := fmt.Sprintf(`UPDATE items SET %s WHERE id = ?`, strings.Join(sets, ", "))
	args = append(args, id)
	if update.Version != nil {
		query += ` AND version = ?`
		args = append(args, *update.Version)
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Database(err, "failed to update item %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errs.Database(err, "failed to read update result for %s", id)
	}
	if affected == 0 {
		current, err := getItem(ctx, q, id)
		if err != nil {
			return nil, err // not found
		}
		return nil, errs.Conflict(id, current.Version)
	}
	return getItem(ctx, q, id)
}

// setItemRole performs the role-change write for a transition: role,
// previous_role and role_changed_at move together, the version bumps, and the
// status label resets to the role default unless the caller supplies one.
func setItemRole(ctx context.Context, q dbtx, id string, role, previousRole types.Role, statusLabel string) (*types.WorkItem, error) {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		UPDATE items
		SET role = ?, previous_role = ?, status_label = ?,
		    role_changed_at = ?, modified_at = ?, version = version + 1
		WHERE id = ?
	`, string(role), string(previousRole), statusLabel, now, now, id)
	if err != nil {
		return nil, errs.Database(err, "failed to set role on item %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errs.Database(err, "failed to read role update result for %s", id)
	}
	if affected == 0 {
		return nil, errs.NotFound("item", id)
	}
	return getItem(ctx, q, id)
}

// deleteItem removes an item. Without recursive, items with children are
// rejected; with it, the subtree goes via FK cascade along with its
// dependencies, notes and counters.
func deleteItem(ctx context.Context, q dbtx, id string, recursive bool) error {
	if _, err := getItem(ctx, q, id); err != nil {
		return err
	}
	if !recursive {
		var children int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE parent_id = ?`, id).Scan(&children); err != nil {
			return errs.Database(err, "failed to count children of %s", id)
		}
		if children > 0 {
			return errs.Validation("item %s has %d children; delete recursively or remove them first", id, children)
		}
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return errs.Database(err, "failed to delete item %s", id)
	}
	return nil
}

func listChildren(ctx context.Context, q dbtx, parentID string) ([]*types.WorkItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE parent_id = ? ORDER BY created_at, id`, parentID)
	if err != nil {
		return nil, errs.Database(err, "failed to list children of %s", parentID)
	}
	defer func() { _ = rows.Close() }()
	items, err := scanItems(rows)
	return items, dberr(err, "failed to scan children of %s", parentID)
}

func childRoleCounts(ctx context.Context, q dbtx, parentID string) (types.RoleCounts, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT role, COUNT(*) FROM items WHERE parent_id = ? GROUP BY role`, parentID)
	if err != nil {
		return nil, errs.Database(err, "failed to count children of %s by role", parentID)
	}
	defer func() { _ = rows.Close() }()

	counts := make(types.RoleCounts)
	for rows.Next() {
		var role types.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, errs.Database(err, "failed to scan role counts for %s", parentID)
		}
		counts[role] = n
	}
	return counts, dberr(rows.Err(), "failed to iterate role counts for %s", parentID)
}

// CreateItem inserts one item.
func (s *Store) CreateItem(ctx context.Context, item *types.WorkItem) error {
	return createItem(ctx, s.db, item)
}

// GetItem fetches one item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return getItem(ctx, s.db, id)
}

// GetItems fetches several items, failing on the first missing ID.
func (s *Store) GetItems(ctx context.Context, ids []string) ([]*types.WorkItem, error) {
	items := make([]*types.WorkItem, 0, len(ids))
	for _, id := range ids {
		it, err := getItem(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// UpdateItem applies a partial update with optimistic concurrency.
func (s *Store) UpdateItem(ctx context.Context, id string, update *types.ItemUpdate) (*types.WorkItem, error) {
	return updateItem(ctx, s.db, id, update)
}

// DeleteItem removes an item, optionally with its whole subtree.
func (s *Store) DeleteItem(ctx context.Context, id string, recursive bool) error {
	return deleteItem(ctx, s.db, id, recursive)
}

// ListChildren returns the direct children of an item.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*types.WorkItem, error) {
	return listChildren(ctx, s.db, parentID)
}

// ListRoots returns all depth-0 items.
func (s *Store) ListRoots(ctx context.Context) ([]*types.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE parent_id IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, errs.Database(err, "failed to list root items")
	}
	defer func() { _ = rows.Close() }()
	items, err := scanItems(rows)
	return items, dberr(err, "failed to scan root items")
}

// ChildRoleCounts counts an item's direct children grouped by role.
func (s *Store) ChildRoleCounts(ctx context.Context, parentID string) (types.RoleCounts, error) {
	return childRoleCounts(ctx, s.db, parentID)
}

// AncestorChain returns the item's ancestors from root to direct parent.
func (s *Store) AncestorChain(ctx context.Context, id string) ([]*types.WorkItem, error) {
	it, err := getItem(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	var chain []*types.WorkItem
	for it.ParentID != nil {
		parent, err := getItem(ctx, s.db, *it.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append([]*types.WorkItem{parent}, chain...)
		it = parent
	}
	return chain, nil
}

// Subtree returns the root item plus all descendants, parents before children.
func (s *Store) Subtree(ctx context.Context, rootID string) ([]*types.WorkItem, error) {
	if _, err := getItem(ctx, s.db, rootID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM items WHERE id = ?
			UNION ALL
			SELECT i.id FROM items i JOIN subtree st ON i.parent_id = st.id
		)
		SELECT `+itemColumns+` FROM items
		WHERE id IN (SELECT id FROM subtree)
		ORDER BY depth, created_at, id
	`, rootID)
	if err != nil {
		return nil, errs.Database(err, "failed to load subtree of %s", rootID)
	}
	defer func() { _ = rows.Close() }()
	items, err := scanItems(rows)
	return items, dberr(err, "failed to scan subtree of %s", rootID)
}
