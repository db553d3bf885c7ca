package sqlite

import (
	"context"
	"time"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

const transitionColumns = `id, entity_id, entity_type, from_role, to_role, from_status, to_status, verb, summary, transitioned_at`

// recordTransition appends one audit row. The table has no FK to items so
// history survives deletion.
func recordTransition(ctx context.Context, q dbtx, tr *types.RoleTransition) error {
	if tr.EntityType == "" {
		tr.EntityType = types.EntityItem
	}
	if tr.TransitionedAt.IsZero() {
		tr.TransitionedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO role_transitions (entity_id, entity_type, from_role, to_role, from_status, to_status, verb, summary, transitioned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tr.EntityID, string(tr.EntityType), string(tr.FromRole), string(tr.ToRole),
		tr.FromStatus, tr.ToStatus, string(tr.Trigger), tr.Summary, tr.TransitionedAt)
	if err != nil {
		return errs.Database(err, "failed to record transition for %s", tr.EntityID)
	}
	if id, err := res.LastInsertId(); err == nil {
		tr.ID = id
	}
	return nil
}

// RecordTransition appends one audit row to the transition log.
func (s *Store) RecordTransition(ctx context.Context, tr *types.RoleTransition) error {
	return recordTransition(ctx, s.db, tr)
}

// TransitionsFor returns an entity's audit rows, most recent first.
func (s *Store) TransitionsFor(ctx context.Context, entityID string, limit int) ([]*types.RoleTransition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transitionColumns+` FROM role_transitions
		WHERE entity_id = ?
		ORDER BY transitioned_at DESC, id DESC
		LIMIT ?
	`, entityID, limit)
	if err != nil {
		return nil, errs.Database(err, "failed to query transitions of %s", entityID)
	}
	defer func() { _ = rows.Close() }()

	var trs []*types.RoleTransition
	for rows.Next() {
		var tr types.RoleTransition
		if err := rows.Scan(&tr.ID, &tr.EntityID, &tr.EntityType, &tr.FromRole, &tr.ToRole,
			&tr.FromStatus, &tr.ToStatus, &tr.Trigger, &tr.Summary, &tr.TransitionedAt); err != nil {
			return nil, errs.Database(err, "failed to scan transition of %s", entityID)
		}
		trs = append(trs, &tr)
	}
	return trs, dberr(rows.Err(), "failed to iterate transitions of %s", entityID)
}
