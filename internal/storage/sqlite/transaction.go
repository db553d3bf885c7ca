package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/types"
)

// RunInTransaction executes fn in one transaction on a dedicated connection.
// The transaction opens with BEGIN IMMEDIATE so the write lock is taken up
// front; a busy begin is retried briefly with backoff before giving up.
// Rollback on error or panic, commit otherwise.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return errs.Database(err, "failed to acquire connection")
	}
	defer func() { _ = conn.Close() }()

	begin := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err != nil && isBusyError(err) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 5), ctx)
	if err := backoff.Retry(begin, policy); err != nil {
		return errs.Database(err, "failed to begin transaction")
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	if err := fn(&connTx{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return errs.Database(err, "failed to commit transaction")
	}
	committed = true
	return nil
}

// connTx runs the transaction body on the connection that issued BEGIN
// IMMEDIATE. database/sql's Tx cannot wrap a manually begun transaction, so
// the wrapper speaks to the connection directly.
type connTx struct {
	conn *sql.Conn
}

var _ storage.Transaction = (*connTx)(nil)

func (t *connTx) CreateItem(ctx context.Context, item *types.WorkItem) error {
	return createItem(ctx, t.conn, item)
}

func (t *connTx) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return getItem(ctx, t.conn, id)
}

func (t *connTx) UpdateItem(ctx context.Context, id string, update *types.ItemUpdate) (*types.WorkItem, error) {
	return updateItem(ctx, t.conn, id, update)
}

func (t *connTx) SetItemRole(ctx context.Context, id string, role, previousRole types.Role, statusLabel string) (*types.WorkItem, error) {
	return setItemRole(ctx, t.conn, id, role, previousRole, statusLabel)
}

func (t *connTx) DeleteItem(ctx context.Context, id string, recursive bool) error {
	return deleteItem(ctx, t.conn, id, recursive)
}

func (t *connTx) ChildRoleCounts(ctx context.Context, parentID string) (types.RoleCounts, error) {
	return childRoleCounts(ctx, t.conn, parentID)
}

func (t *connTx) CreateDependencies(ctx context.Context, deps []*types.Dependency) error {
	return createDependencies(ctx, t.conn, deps)
}

func (t *connTx) DependenciesOf(ctx context.Context, itemID string) ([]*types.Dependency, error) {
	return dependenciesOf(ctx, t.conn, itemID)
}

func (t *connTx) AllDependencies(ctx context.Context) ([]*types.Dependency, error) {
	return allDependencies(ctx, t.conn)
}

func (t *connTx) UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error) {
	return upsertNote(ctx, t.conn, note)
}

func (t *connTx) NotesFor(ctx context.Context, itemID string) ([]*types.Note, error) {
	return notesFor(ctx, t.conn, itemID)
}

func (t *connTx) RecordTransition(ctx context.Context, tr *types.RoleTransition) error {
	return recordTransition(ctx, t.conn, tr)
}

func (t *connTx) OpenBlockers(ctx context.Context, itemID string) ([]types.BlockerInfo, error) {
	return openBlockers(ctx, t.conn, itemID)
}

func (t *connTx) NewlyUnblocked(ctx context.Context, blockerID string) ([]*types.WorkItem, error) {
	return newlyUnblocked(ctx, t.conn, blockerID)
}
