package worktree

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/storage/sqlite"
	"github.com/untoldecay/loom/internal/types"
	"github.com/untoldecay/loom/internal/workflow"
)

func newTestService(t *testing.T, registry *schema.Registry) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if registry == nil {
		registry, err = schema.New(nil, nil, nil)
		require.NoError(t, err)
	}
	flow := workflow.NewService(store, registry)
	return NewService(store, registry, flow), store
}

func twoChildTree() *CreateTreeRequest {
	return &CreateTreeRequest{
		Root: ItemSpec{Title: "F"},
		Children: []ChildSpec{
			{Ref: "t1", ItemSpec: ItemSpec{Title: "T1"}},
			{Ref: "t2", ItemSpec: ItemSpec{Title: "T2"}},
		},
		Deps: []DepSpec{
			{From: "t1", To: "t2", Type: types.DepBlocks, UnblockAt: types.RoleTerminal},
		},
	}
}

func TestCreateTreeRoundTrip(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	result, err := svc.CreateTree(ctx, twoChildTree())
	require.NoError(t, err)
	require.NotNil(t, result.Root)
	require.Len(t, result.Children, 2)
	require.Len(t, result.Deps, 1)

	root, err := store.GetItem(ctx, result.Root.ID)
	require.NoError(t, err)
	assert.Equal(t, "F", root.Title)
	assert.Equal(t, 0, root.Depth)

	for _, c := range result.Children {
		got, err := store.GetItem(ctx, c.Item.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Depth)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, root.ID, *got.ParentID)
	}

	dep := result.Deps[0]
	assert.Equal(t, result.Children[0].Item.ID, dep.FromItemID)
	assert.Equal(t, result.Children[1].Item.ID, dep.ToItemID)
}

func TestCreateTreeUnderParent(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	parent := &types.WorkItem{Title: "Project"}
	require.NoError(t, store.CreateItem(ctx, parent))

	result, err := svc.CreateTree(ctx, &CreateTreeRequest{
		Root:     ItemSpec{Title: "Feature"},
		ParentID: parent.ID,
		Children: []ChildSpec{{Ref: "t1", ItemSpec: ItemSpec{Title: "Task"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Root.Depth)
	assert.Equal(t, 2, result.Children[0].Item.Depth)
}

func TestCreateTreeRejectsChildrenOverDepthCap(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	root := &types.WorkItem{Title: "Root"}
	require.NoError(t, store.CreateItem(ctx, root))
	mid := &types.WorkItem{ParentID: &root.ID, Title: "Mid"}
	require.NoError(t, store.CreateItem(ctx, mid))

	// Tree root would land at depth 2; children would exceed the cap.
	_, err := svc.CreateTree(ctx, &CreateTreeRequest{
		Root:     ItemSpec{Title: "Leaf"},
		ParentID: mid.ID,
		Children: []ChildSpec{{Ref: "t1", ItemSpec: ItemSpec{Title: "Too deep"}}},
	})
	require.True(t, errs.Is(err, errs.CodeValidation), "got %v", err)

	// Without children the same placement is allowed.
	result, err := svc.CreateTree(ctx, &CreateTreeRequest{
		Root: ItemSpec{Title: "Leaf"}, ParentID: mid.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Root.Depth)
}

func TestCreateTreeRefValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *CreateTreeRequest
	}{
		{"duplicate refs", &CreateTreeRequest{
			Root: ItemSpec{Title: "F"},
			Children: []ChildSpec{
				{Ref: "a", ItemSpec: ItemSpec{Title: "1"}},
				{Ref: "a", ItemSpec: ItemSpec{Title: "2"}},
			},
		}},
		{"reserved root ref", &CreateTreeRequest{
			Root:     ItemSpec{Title: "F"},
			Children: []ChildSpec{{Ref: "root", ItemSpec: ItemSpec{Title: "1"}}},
		}},
		{"unknown dep ref", &CreateTreeRequest{
			Root:     ItemSpec{Title: "F"},
			Children: []ChildSpec{{Ref: "a", ItemSpec: ItemSpec{Title: "1"}}},
			Deps:     []DepSpec{{From: "a", To: "ghost", Type: types.DepBlocks}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTree(ctx, tc.req)
			assert.True(t, errs.Is(err, errs.CodeValidation), "got %v", err)
		})
	}
}

func TestCreateTreeRejectsCycleBeforeWrite(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateTree(ctx, &CreateTreeRequest{
		Root: ItemSpec{Title: "F"},
		Children: []ChildSpec{
			{Ref: "a", ItemSpec: ItemSpec{Title: "A"}},
			{Ref: "b", ItemSpec: ItemSpec{Title: "B"}},
		},
		Deps: []DepSpec{
			{From: "a", To: "b", Type: types.DepBlocks},
			{From: "b", To: "a", Type: types.DepBlocks},
		},
	})
	require.True(t, errs.Is(err, errs.CodeValidation), "got %v", err)

	roots, err := store.ListRoots(ctx)
	require.NoError(t, err)
	assert.Empty(t, roots, "nothing may be written before the cycle check")
}

func TestCreateTreeSchemaNotes(t *testing.T) {
	registry, err := schema.New(map[string][]schema.Entry{
		"bugfix": {{Key: "root-cause", Role: types.RoleWork, Required: true}},
	}, nil, nil)
	require.NoError(t, err)
	svc, store := newTestService(t, registry)
	ctx := context.Background()

	result, err := svc.CreateTree(ctx, &CreateTreeRequest{
		Root:        ItemSpec{Title: "F"},
		Children:    []ChildSpec{{Ref: "t1", ItemSpec: ItemSpec{Title: "Fix", Tags: "bugfix"}}},
		CreateNotes: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Notes, 1)
	assert.Equal(t, "t1", result.Notes[0].ItemRef)
	assert.Equal(t, "root-cause", result.Notes[0].Note.Key)

	notes, err := store.FindNotes(ctx, types.NoteFilter{ItemID: result.Children[0].Item.ID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Empty(t, notes[0].Body)
}

func TestCompleteTreeLeavesFirst(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	tree, err := svc.CreateTree(ctx, twoChildTree())
	require.NoError(t, err)
	t1 := tree.Children[0].Item.ID
	t2 := tree.Children[1].Item.ID

	result, err := svc.CompleteTree(ctx, &CompleteTreeRequest{
		RootIDs: []string{tree.Root.ID}, Mode: ModeComplete,
	})
	require.NoError(t, err)
	require.Nil(t, result.Failed)
	require.Equal(t, []string{t1, t2, tree.Root.ID}, result.Order)
	require.Equal(t, result.Order, result.Completed)

	for _, id := range result.Order {
		item, err := store.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.RoleTerminal, item.Role, "item %s", id)
	}
}

func TestCompleteTreeHaltsOnGateFailure(t *testing.T) {
	registry, err := schema.New(map[string][]schema.Entry{
		"bugfix": {{Key: "root-cause", Role: types.RoleWork, Required: true}},
	}, nil, nil)
	require.NoError(t, err)
	svc, store := newTestService(t, registry)
	ctx := context.Background()

	tree, err := svc.CreateTree(ctx, &CreateTreeRequest{
		Root: ItemSpec{Title: "F"},
		Children: []ChildSpec{
			{Ref: "t1", ItemSpec: ItemSpec{Title: "Free"}},
			{Ref: "t2", ItemSpec: ItemSpec{Title: "Gated", Tags: "bugfix"}},
		},
		Deps: []DepSpec{{From: "t1", To: "t2", Type: types.DepBlocks}},
	})
	require.NoError(t, err)
	t1 := tree.Children[0].Item.ID
	t2 := tree.Children[1].Item.ID

	result, err := svc.CompleteTree(ctx, &CompleteTreeRequest{
		RootIDs: []string{tree.Root.ID}, Mode: ModeComplete,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Failed)
	assert.Equal(t, t2, result.Failed.ItemID)
	assert.Equal(t, errs.CodeGateNotSatisfied, result.Failed.Code)

	// Partial commit: t1 stays terminal, t2 stays where its batch rolled back.
	done, err := store.GetItem(ctx, t1)
	require.NoError(t, err)
	assert.Equal(t, types.RoleTerminal, done.Role)
	gated, err := store.GetItem(ctx, t2)
	require.NoError(t, err)
	assert.Equal(t, types.RoleQueue, gated.Role)
}

func TestCompleteTreeCancelMode(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	tree, err := svc.CreateTree(ctx, twoChildTree())
	require.NoError(t, err)

	result, err := svc.CompleteTree(ctx, &CompleteTreeRequest{
		RootIDs: []string{tree.Root.ID}, Mode: ModeCancel,
	})
	require.NoError(t, err)
	require.Nil(t, result.Failed)

	trs, err := store.TransitionsFor(ctx, tree.Root.ID, 10)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, types.TriggerCancel, trs[0].Trigger)
}

func TestCompleteTreeCleanupHonorsPreserveTags(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	tree, err := svc.CreateTree(ctx, &CreateTreeRequest{
		Root: ItemSpec{Title: "F"},
		Children: []ChildSpec{
			{Ref: "keep", ItemSpec: ItemSpec{Title: "Hotfix", Tags: "hotfix"}},
			{Ref: "drop", ItemSpec: ItemSpec{Title: "Chore"}},
		},
	})
	require.NoError(t, err)
	keep := tree.Children[0].Item.ID
	drop := tree.Children[1].Item.ID

	result, err := svc.CompleteTree(ctx, &CompleteTreeRequest{
		RootIDs: []string{tree.Root.ID}, Mode: ModeComplete, CleanupChildren: true,
	})
	require.NoError(t, err)
	require.Nil(t, result.Failed)
	assert.Equal(t, []string{drop}, result.Deleted)

	_, err = store.GetItem(ctx, keep)
	assert.NoError(t, err, "preserve-tagged child must survive cleanup")
	_, err = store.GetItem(ctx, drop)
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestCompleteTreeSkipsAlreadyTerminal(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	tree, err := svc.CreateTree(ctx, twoChildTree())
	require.NoError(t, err)
	t1 := tree.Children[0].Item.ID

	flow := workflow.NewService(store, mustRegistry(t))
	_, err = flow.AdvanceBatch(ctx, []workflow.TransitionRequest{
		{ItemID: t1, Trigger: types.TriggerStart},
		{ItemID: t1, Trigger: types.TriggerComplete},
	})
	require.NoError(t, err)

	result, err := svc.CompleteTree(ctx, &CompleteTreeRequest{
		RootIDs: []string{tree.Root.ID}, Mode: ModeComplete,
	})
	require.NoError(t, err)
	require.Nil(t, result.Failed)
	assert.Equal(t, []string{t1}, result.Skipped)
}

func mustRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r, err := schema.New(nil, nil, nil)
	require.NoError(t, err)
	return r
}
