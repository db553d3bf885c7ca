package queries

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/loom/internal/gate"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/storage/sqlite"
	"github.com/untoldecay/loom/internal/types"
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
	return NewService(store, registry), store
}

func createItem(t *testing.T, store *sqlite.Store, item *types.WorkItem) *types.WorkItem {
	t.Helper()
	require.NoError(t, store.CreateItem(context.Background(), item))
	return item
}

func TestParseTimeExpr(t *testing.T) {
	svc, _ := newTestService(t, nil)
	svc.clock = func() time.Time {
		return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	}

	got, err := svc.ParseTimeExpr("2026-08-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = svc.ParseTimeExpr("2026-08-01")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Day())

	got, err = svc.ParseTimeExpr("3 days ago")
	require.NoError(t, err)
	assert.Equal(t, 21, got.Day())

	_, err = svc.ParseTimeExpr("not a time at all @@@")
	assert.Error(t, err)

	got, err = svc.ParseTimeExpr("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestSearchMinimalProjection(t *testing.T) {
	svc, store := newTestService(t, nil)
	createItem(t, store, &types.WorkItem{Title: "Only one", Priority: types.PriorityHigh})

	resp, err := svc.Search(context.Background(), SearchRequest{Minimal: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	require.Len(t, resp.Summaries, 1)
	assert.Equal(t, "Only one", resp.Summaries[0].Title)
	assert.Equal(t, types.PriorityHigh, resp.Summaries[0].Priority)
}

func TestSearchIncludeAncestors(t *testing.T) {
	svc, store := newTestService(t, nil)
	root := createItem(t, store, &types.WorkItem{Title: "Root"})
	child := createItem(t, store, &types.WorkItem{ParentID: &root.ID, Title: "Child match"})

	depth := 1
	resp, err := svc.Search(context.Background(), SearchRequest{
		Filter:           types.ItemFilter{Depth: &depth},
		IncludeAncestors: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	chain := resp.Ancestors[child.ID]
	require.Len(t, chain, 1)
	assert.Equal(t, root.ID, chain[0].ID)
}

func TestOverviewForItem(t *testing.T) {
	svc, store := newTestService(t, nil)
	root := createItem(t, store, &types.WorkItem{Title: "Root"})
	createItem(t, store, &types.WorkItem{ParentID: &root.ID, Title: "C1"})
	createItem(t, store, &types.WorkItem{ParentID: &root.ID, Title: "C2"})

	ov, err := svc.Overview(context.Background(), root.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, ov.ChildCounts[types.RoleQueue])
	assert.Len(t, ov.Children, 2)
}

func TestOverviewRoots(t *testing.T) {
	svc, store := newTestService(t, nil)
	createItem(t, store, &types.WorkItem{Title: "R1"})
	createItem(t, store, &types.WorkItem{Title: "R2"})

	ov, err := svc.OverviewRoots(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, ov.Roots, 2)
	require.NotNil(t, ov.Statistics)
	assert.Equal(t, 2, ov.Statistics.TotalItems)
}

func TestNextItemSkipsBlocked(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	blocker := createItem(t, store, &types.WorkItem{Title: "Blocker", Priority: types.PriorityLow})
	held := createItem(t, store, &types.WorkItem{Title: "Held", Priority: types.PriorityHigh})
	require.NoError(t, store.CreateDependencies(ctx, []*types.Dependency{
		{FromItemID: blocker.ID, ToItemID: held.ID, Type: types.DepBlocks},
	}))

	next, err := svc.NextItem(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, blocker.ID, next.ID, "held item must be skipped despite higher priority")
}

func TestNextItemEmptyStore(t *testing.T) {
	svc, _ := newTestService(t, nil)
	next, err := svc.NextItem(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestContextBundle(t *testing.T) {
	registry, err := schema.New(map[string][]schema.Entry{
		"bugfix": {{Key: "root-cause", Role: types.RoleQueue, Required: true}},
	}, nil, nil)
	require.NoError(t, err)
	svc, store := newTestService(t, registry)
	ctx := context.Background()

	root := createItem(t, store, &types.WorkItem{Title: "Root"})
	item := createItem(t, store, &types.WorkItem{ParentID: &root.ID, Title: "Task", Tags: "bugfix"})
	createItem(t, store, &types.WorkItem{ParentID: &item.ID, Title: "Subtask"})
	blocker := createItem(t, store, &types.WorkItem{Title: "Blocker"})
	require.NoError(t, store.CreateDependencies(ctx, []*types.Dependency{
		{FromItemID: blocker.ID, ToItemID: item.ID, Type: types.DepBlocks},
	}))

	bundle, err := svc.Context(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, bundle.Item.ID)
	require.NotNil(t, bundle.Parent)
	assert.Equal(t, root.ID, bundle.Parent.ID)
	assert.Len(t, bundle.Children, 1)
	require.Len(t, bundle.ExpectedNotes, 1)
	assert.False(t, bundle.ExpectedNotes[0].Filled)
	assert.Equal(t, gate.StatusClosed, bundle.GateStatus)
	require.Len(t, bundle.OpenBlockers, 1)
	assert.Equal(t, blocker.ID, bundle.OpenBlockers[0].ItemID)
	assert.NotEmpty(t, bundle.Triggers)
	assert.Equal(t, 0, bundle.FlowPosition)
}

func TestTraverseDependencies(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	a := createItem(t, store, &types.WorkItem{Title: "A"})
	b := createItem(t, store, &types.WorkItem{Title: "B"})
	c := createItem(t, store, &types.WorkItem{Title: "C"})
	require.NoError(t, store.CreateDependencies(ctx, []*types.Dependency{
		{FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks},
		{FromItemID: b.ID, ToItemID: c.ID, Type: types.DepRelatesTo},
	}))

	nodes, err := svc.TraverseDependencies(ctx, a.ID, 1)
	require.NoError(t, err)
	require.Len(t, nodes, 2, "depth 1 reaches only a and b")
	assert.Equal(t, a.ID, nodes[0].ItemID)

	nodes, err = svc.TraverseDependencies(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}
