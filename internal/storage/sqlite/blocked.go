package sqlite

import (
	"context"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

// openBlockers lists the unsatisfied blocking edges holding one item, via the
// open_blockers view.
func openBlockers(ctx context.Context, q dbtx, itemID string) ([]types.BlockerInfo, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT blocker_id, blocker_title, blocker_role, unblock_at
		FROM open_blockers WHERE blocked_id = ?
		ORDER BY blocker_id
	`, itemID)
	if err != nil {
		return nil, errs.Database(err, "failed to query blockers of %s", itemID)
	}
	defer func() { _ = rows.Close() }()

	var blockers []types.BlockerInfo
	for rows.Next() {
		var b types.BlockerInfo
		if err := rows.Scan(&b.ItemID, &b.Title, &b.Role, &b.UnblockAt); err != nil {
			return nil, errs.Database(err, "failed to scan blocker of %s", itemID)
		}
		blockers = append(blockers, b)
	}
	return blockers, dberr(rows.Err(), "failed to iterate blockers of %s", itemID)
}

// newlyUnblocked finds the items that depend on the given blocker and no
// longer have any open blocker at all. Called after the blocker transitions
// so advance responses can report what the change released.
func newlyUnblocked(ctx context.Context, q dbtx, blockerID string) ([]*types.WorkItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE id IN (SELECT blocked_id FROM blocking_edges WHERE blocker_id = ?)
		  AND id NOT IN (SELECT blocked_id FROM open_blockers)
		  AND role <> 'terminal'
		ORDER BY id
	`, blockerID)
	if err != nil {
		return nil, errs.Database(err, "failed to query items unblocked by %s", blockerID)
	}
	defer func() { _ = rows.Close() }()
	items, err := scanItems(rows)
	return items, dberr(err, "failed to scan items unblocked by %s", blockerID)
}

// OpenBlockers lists the unsatisfied blockers currently holding an item.
func (s *Store) OpenBlockers(ctx context.Context, itemID string) ([]types.BlockerInfo, error) {
	return openBlockers(ctx, s.db, itemID)
}

// BlockedItems returns every non-terminal item with at least one open blocker,
// each paired with the blockers holding it.
func (s *Store) BlockedItems(ctx context.Context) ([]*types.BlockedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE id IN (SELECT blocked_id FROM open_blockers)
		  AND role <> 'terminal'
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at, id
	`)
	if err != nil {
		return nil, errs.Database(err, "failed to query blocked items")
	}
	defer func() { _ = rows.Close() }()

	items, err := scanItems(rows)
	if err != nil {
		return nil, errs.Database(err, "failed to scan blocked items")
	}

	blocked := make([]*types.BlockedItem, 0, len(items))
	for _, it := range items {
		blockers, err := openBlockers(ctx, s.db, it.ID)
		if err != nil {
			return nil, err
		}
		blocked = append(blocked, &types.BlockedItem{Item: it, Blockers: blockers})
	}
	return blocked, nil
}

// ActionableItems returns items that can be worked right now: not blocked or
// terminal, no open blockers. Ordered for the next-item recommender: priority
// first, deeper (more specific) items next, oldest first as the tiebreak.
func (s *Store) ActionableItems(ctx context.Context, limit int) ([]*types.WorkItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE role NOT IN ('blocked', 'terminal')
		  AND id NOT IN (SELECT blocked_id FROM open_blockers)
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		         depth DESC, created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errs.Database(err, "failed to query actionable items")
	}
	defer func() { _ = rows.Close() }()
	items, err := scanItems(rows)
	return items, dberr(err, "failed to scan actionable items")
}
