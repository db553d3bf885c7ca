package sqlite

import (
	"context"
	"time"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

const noteColumns = `id, item_id, key, role, body, created_at, modified_at`

func scanNote(row rowScanner) (*types.Note, error) {
	var n types.Note
	if err := row.Scan(&n.ID, &n.ItemID, &n.Key, &n.Role, &n.Body, &n.CreatedAt, &n.ModifiedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// upsertNote inserts or replaces the note matching (item_id, key). The role
// defaults to work; an existing note keeps its created_at.
func upsertNote(ctx context.Context, q dbtx, note *types.Note) (*types.Note, error) {
	if note.Role == "" {
		note.Role = types.RoleWork
	}
	if err := note.Validate(); err != nil {
		return nil, errs.Validation("%v", err)
	}
	if _, err := getItem(ctx, q, note.ItemID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := q.QueryRowContext(ctx, `
		INSERT INTO notes (item_id, key, role, body, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, key) DO UPDATE SET
			role = excluded.role,
			body = excluded.body,
			modified_at = excluded.modified_at
		RETURNING `+noteColumns,
		note.ItemID, note.Key, string(note.Role), note.Body, now, now)
	saved, err := scanNote(row)
	if err != nil {
		return nil, errs.Database(err, "failed to upsert note %s on %s", note.Key, note.ItemID)
	}
	return saved, nil
}

func notesFor(ctx context.Context, q dbtx, itemID string) ([]*types.Note, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE item_id = ? ORDER BY key`, itemID)
	if err != nil {
		return nil, errs.Database(err, "failed to list notes of %s", itemID)
	}
	defer func() { _ = rows.Close() }()

	var notes []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, errs.Database(err, "failed to scan note of %s", itemID)
		}
		notes = append(notes, n)
	}
	return notes, dberr(rows.Err(), "failed to iterate notes of %s", itemID)
}

// UpsertNote inserts or updates the note keyed by (item_id, key).
func (s *Store) UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error) {
	return upsertNote(ctx, s.db, note)
}

// DeleteNote removes one note by row ID.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return errs.Database(err, "failed to delete note %d", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Database(err, "failed to read delete result")
	}
	if affected == 0 {
		return errs.NotFound("note", "")
	}
	return nil
}

// FindNotes lists notes matching the filter. MetadataOnly blanks the bodies so
// callers can show what exists without paying for content.
func (s *Store) FindNotes(ctx context.Context, filter types.NoteFilter) ([]*types.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE item_id = ?`
	args := []any{filter.ItemID}
	if filter.Role != "" {
		query += ` AND role = ?`
		args = append(args, string(filter.Role))
	}
	if filter.Key != "" {
		query += ` AND key = ?`
		args = append(args, filter.Key)
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Database(err, "failed to query notes")
	}
	defer func() { _ = rows.Close() }()

	var notes []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, errs.Database(err, "failed to scan note")
		}
		if filter.MetadataOnly {
			n.Body = ""
		}
		notes = append(notes, n)
	}
	return notes, dberr(rows.Err(), "failed to iterate notes")
}
