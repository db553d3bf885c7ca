package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/types"
)

func TestRunInTransactionCommits(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	var createdID string
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		item := &types.WorkItem{Title: "Inside tx"}
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		createdID = item.ID
		return tx.RecordTransition(ctx, &types.RoleTransition{
			EntityID: item.ID, FromRole: "", ToRole: types.RoleQueue, Trigger: types.TriggerStart,
		})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if _, err := store.GetItem(ctx, createdID); err != nil {
		t.Fatalf("committed item should exist: %v", err)
	}
	trs, err := store.TransitionsFor(ctx, createdID, 10)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(trs) != 1 {
		t.Fatalf("expected one audit row, got %d", len(trs))
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	sentinel := errors.New("abort")
	var createdID string
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		item := &types.WorkItem{Title: "Doomed"}
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		createdID = item.ID
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error back, got %v", err)
	}

	if _, err := store.GetItem(ctx, createdID); !errs.Is(err, errs.CodeNotFound) {
		t.Fatalf("rolled-back item should not exist, got %v", err)
	}
}

func TestRunInTransactionRollsBackOnPanic(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	var createdID string
	func() {
		defer func() { _ = recover() }()
		_ = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			item := &types.WorkItem{Title: "Panicking"}
			if err := tx.CreateItem(ctx, item); err != nil {
				return err
			}
			createdID = item.ID
			panic("boom")
		})
	}()

	if _, err := store.GetItem(ctx, createdID); !errs.Is(err, errs.CodeNotFound) {
		t.Fatalf("panicked transaction should roll back, got %v", err)
	}
}

func TestRunInTransactionMultiStepAtomicity(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	a := mustCreate(t, store, &types.WorkItem{Title: "A"})
	b := mustCreate(t, store, &types.WorkItem{Title: "B"})

	// The edge insert fails on the cycle check after the first edge is
	// written inside the transaction; nothing must survive.
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateDependencies(ctx, []*types.Dependency{
			{FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks},
		}); err != nil {
			return err
		}
		return tx.CreateDependencies(ctx, []*types.Dependency{
			{FromItemID: b.ID, ToItemID: a.ID, Type: types.DepBlocks},
		})
	})
	if !errs.Is(err, errs.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	deps, err := store.AllDependencies(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("expected full rollback, got %d edges", len(deps))
	}
}
