package sqlite

import (
	"context"
	"strings"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

const defaultSearchLimit = 50

// buildFilterClauses translates an ItemFilter into WHERE fragments and args.
func buildFilterClauses(filter types.ItemFilter) ([]string, []any) {
	var where []string
	var args []any

	if filter.ParentID != nil {
		if *filter.ParentID == "" {
			where = append(where, "parent_id IS NULL")
		} else {
			where = append(where, "parent_id = ?")
			args = append(args, *filter.ParentID)
		}
	}
	if filter.Depth != nil {
		where = append(where, "depth = ?")
		args = append(args, *filter.Depth)
	}
	if filter.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(filter.Role))
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.StatusLabel != "" {
		where = append(where, "status_label = ?")
		args = append(args, filter.StatusLabel)
	}
	if len(filter.Tags) > 0 {
		// The tag bag is stored comma-separated; wrap both sides in commas
		// so 'api' never matches 'api-v2'.
		ors := make([]string, len(filter.Tags))
		for i, tag := range filter.Tags {
			ors[i] = "(',' || replace(tags, ' ', '') || ',') LIKE ?"
			args = append(args, "%,"+strings.TrimSpace(tag)+",%")
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if filter.Query != "" {
		where = append(where, "(title LIKE ? OR summary LIKE ?)")
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	windows := []struct {
		col string
		win types.TimeWindow
	}{
		{"created_at", filter.Created},
		{"modified_at", filter.Modified},
		{"role_changed_at", filter.RoleChanged},
	}
	for _, w := range windows {
		if !w.win.After.IsZero() {
			where = append(where, w.col+" >= ?")
			args = append(args, w.win.After.UTC())
		}
		if !w.win.Before.IsZero() {
			where = append(where, w.col+" <= ?")
			args = append(args, w.win.Before.UTC())
		}
	}
	return where, args
}

// orderClause maps the whitelisted sort fields onto columns. Priority sorts by
// rank (high first ascending) rather than alphabetically.
func orderClause(filter types.ItemFilter) string {
	col := "created_at"
	switch filter.SortBy {
	case types.SortByTitle:
		col = "title"
	case types.SortByComplexity:
		col = "complexity"
	case types.SortByCreatedAt:
		col = "created_at"
	case types.SortByModifiedAt:
		col = "modified_at"
	case types.SortByPriority:
		col = "CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir + ", id ASC"
}

// FindItems returns one page of items matching the filter, plus the
// unpaginated total.
func (s *Store) FindItems(ctx context.Context, filter types.ItemFilter) (*types.SearchResult, error) {
	if filter.SortBy != "" && !filter.SortBy.IsValid() {
		return nil, errs.Validation("invalid sort field: %s", filter.SortBy)
	}
	total, err := s.CountItems(ctx, filter)
	if err != nil {
		return nil, err
	}

	where, args := buildFilterClauses(filter)
	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderClause(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Database(err, "search query failed")
	}
	defer func() { _ = rows.Close() }()

	items, err := scanItems(rows)
	if err != nil {
		return nil, errs.Database(err, "failed to scan search results")
	}
	return &types.SearchResult{
		Items:    items,
		Total:    total,
		Returned: len(items),
		Limit:    limit,
		Offset:   filter.Offset,
	}, nil
}

// CountItems counts items matching the filter, ignoring pagination.
func (s *Store) CountItems(ctx context.Context, filter types.ItemFilter) (int, error) {
	where, args := buildFilterClauses(filter)
	query := `SELECT COUNT(*) FROM items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errs.Database(err, "count query failed")
	}
	return n, nil
}

// Statistics summarizes the whole store in one pass per table.
func (s *Store) Statistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{
		ByRole:     make(types.RoleCounts),
		ByPriority: make(map[types.Priority]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM items GROUP BY role`)
	if err != nil {
		return nil, errs.Database(err, "failed to count items by role")
	}
	for rows.Next() {
		var role types.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			_ = rows.Close()
			return nil, errs.Database(err, "failed to scan role counts")
		}
		stats.ByRole[role] = n
		stats.TotalItems += n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, errs.Database(err, "failed to iterate role counts")
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT priority, COUNT(*) FROM items GROUP BY priority`)
	if err != nil {
		return nil, errs.Database(err, "failed to count items by priority")
	}
	for rows.Next() {
		var p types.Priority
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			_ = rows.Close()
			return nil, errs.Database(err, "failed to scan priority counts")
		}
		stats.ByPriority[p] = n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, errs.Database(err, "failed to iterate priority counts")
	}
	_ = rows.Close()

	singles := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM items WHERE parent_id IS NULL`, &stats.RootItems},
		{`SELECT COUNT(DISTINCT blocked_id) FROM open_blockers`, &stats.BlockedByDep},
		{`SELECT COUNT(*) FROM dependencies`, &stats.Dependencies},
		{`SELECT COUNT(*) FROM notes`, &stats.Notes},
	}
	for _, q := range singles {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, errs.Database(err, "failed to compute statistics")
		}
	}
	return stats, nil
}
