package sqlite

import (
	"context"
	"testing"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

func TestUpsertNoteInsertAndUpdate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	item := mustCreate(t, store, &types.WorkItem{Title: "Item"})

	first, err := store.UpsertNote(ctx, &types.Note{
		ItemID: item.ID, Key: "findings", Role: types.RoleWork, Body: "initial",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID == 0 {
		t.Error("expected a row ID")
	}

	second, err := store.UpsertNote(ctx, &types.Note{
		ItemID: item.ID, Key: "findings", Role: types.RoleReview, Body: "revised",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert should reuse the row, got %d then %d", first.ID, second.ID)
	}
	if second.Body != "revised" || second.Role != types.RoleReview {
		t.Errorf("unexpected note after upsert: %+v", second)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at should survive upserts")
	}

	notes, err := store.FindNotes(ctx, types.NoteFilter{ItemID: item.ID})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected one note, got %d", len(notes))
	}
}

func TestUpsertNoteDefaultsRoleToWork(t *testing.T) {
	store := setupTestDB(t)
	item := mustCreate(t, store, &types.WorkItem{Title: "Item"})

	note, err := store.UpsertNote(context.Background(), &types.Note{
		ItemID: item.ID, Key: "plan", Body: "steps",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if note.Role != types.RoleWork {
		t.Errorf("expected role work, got %s", note.Role)
	}
}

func TestUpsertNoteMissingItem(t *testing.T) {
	store := setupTestDB(t)
	_, err := store.UpsertNote(context.Background(), &types.Note{
		ItemID: "wi-ghost", Key: "plan", Body: "x",
	})
	if !errs.Is(err, errs.CodeNotFound) {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %v", err)
	}
}

func TestFindNotesFilters(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	item := mustCreate(t, store, &types.WorkItem{Title: "Item"})

	for _, n := range []*types.Note{
		{ItemID: item.ID, Key: "plan", Role: types.RoleQueue, Body: "p"},
		{ItemID: item.ID, Key: "findings", Role: types.RoleWork, Body: "f"},
		{ItemID: item.ID, Key: "verdict", Role: types.RoleReview, Body: "v"},
	} {
		if _, err := store.UpsertNote(ctx, n); err != nil {
			t.Fatalf("upsert %s: %v", n.Key, err)
		}
	}

	work, err := store.FindNotes(ctx, types.NoteFilter{ItemID: item.ID, Role: types.RoleWork})
	if err != nil {
		t.Fatalf("find by role: %v", err)
	}
	if len(work) != 1 || work[0].Key != "findings" {
		t.Fatalf("expected only findings, got %v", work)
	}

	meta, err := store.FindNotes(ctx, types.NoteFilter{ItemID: item.ID, MetadataOnly: true})
	if err != nil {
		t.Fatalf("find metadata: %v", err)
	}
	if len(meta) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(meta))
	}
	for _, n := range meta {
		if n.Body != "" {
			t.Errorf("metadata-only result should omit bodies, %s has %q", n.Key, n.Body)
		}
	}
}

func TestDeleteNote(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	item := mustCreate(t, store, &types.WorkItem{Title: "Item"})
	note, err := store.UpsertNote(ctx, &types.Note{ItemID: item.ID, Key: "plan", Body: "x"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.DeleteNote(ctx, note.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteNote(ctx, note.ID); !errs.Is(err, errs.CodeNotFound) {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %v", err)
	}
}
