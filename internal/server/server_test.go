package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/storage/sqlite"
	"github.com/untoldecay/loom/internal/types"
)

func newTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	registry, err := schema.New(nil, nil, nil)
	require.NoError(t, err)
	return New(store, registry), store
}

func callReq(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// decoded is the envelope with raw data, so tests can unmarshal the payload
// they care about.
type decoded struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *EnvelopeError  `json:"error"`
}

func decode(t *testing.T, result *mcp.CallToolResult) decoded {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, okCast := result.Content[0].(mcp.TextContent)
	require.True(t, okCast, "tool result should be text content")
	var env decoded
	require.NoError(t, json.Unmarshal([]byte(text.Text), &env))
	return env
}

func TestManageItemsCreate(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleManageItems(ctx, callReq(map[string]any{
		"action": "create",
		"items": []any{
			map[string]any{"title": "First task", "priority": "high"},
		},
	}))
	require.NoError(t, err)
	env := decode(t, result)
	require.True(t, env.Success, "message: %s", env.Message)

	var data struct {
		Items []*types.WorkItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Items, 1)
	assert.NotEmpty(t, data.Items[0].ID)
	assert.Equal(t, types.PriorityHigh, data.Items[0].Priority)

	stored, err := store.GetItem(ctx, data.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "First task", stored.Title)
}

func TestManageItemsCreateMissingTitle(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleManageItems(context.Background(), callReq(map[string]any{
		"action": "create",
		"items":  []any{map[string]any{"summary": "no title"}},
	}))
	require.NoError(t, err, "argument errors stay inside the envelope")
	env := decode(t, result)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errs.CodeValidation, env.Error.Code)
}

func TestManageItemsUpdateVersionConflict(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	item := &types.WorkItem{Title: "Task"}
	require.NoError(t, store.CreateItem(ctx, item))

	result, err := srv.handleManageItems(ctx, callReq(map[string]any{
		"action": "update",
		"items": []any{
			map[string]any{"id": item.ID, "title": "Renamed", "version": 99},
		},
	}))
	require.NoError(t, err)
	env := decode(t, result)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errs.CodeConflict, env.Error.Code)
	assert.EqualValues(t, 1, env.Error.AdditionalData["currentVersion"])
}

func TestManageItemsBatchCreateAtomic(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	// The second payload fails on its missing parent; the first must not
	// survive the batch.
	result, err := srv.handleManageItems(ctx, callReq(map[string]any{
		"action": "create",
		"items": []any{
			map[string]any{"title": "Survivor?"},
			map[string]any{"title": "Orphan", "parentId": "wi-ghost"},
		},
	}))
	require.NoError(t, err)
	env := decode(t, result)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errs.CodeNotFound, env.Error.Code)

	roots, err := store.ListRoots(ctx)
	require.NoError(t, err)
	assert.Empty(t, roots, "failed batch must persist nothing")
}

func TestManageItemsBatchDeleteAtomic(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	item := &types.WorkItem{Title: "Keep me"}
	require.NoError(t, store.CreateItem(ctx, item))

	result, err := srv.handleManageItems(ctx, callReq(map[string]any{
		"action": "delete",
		"items": []any{
			map[string]any{"id": item.ID},
			map[string]any{"id": "wi-ghost"},
		},
	}))
	require.NoError(t, err)
	env := decode(t, result)
	assert.False(t, env.Success)

	_, err = store.GetItem(ctx, item.ID)
	require.NoError(t, err, "delete of the first item must roll back")
}

func TestQueryItemsSearch(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{Title: "Fix login", Priority: types.PriorityHigh}))
	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{Title: "Write docs"}))

	result, err := srv.handleQueryItems(ctx, callReq(map[string]any{
		"action":   "search",
		"priority": "high",
	}))
	require.NoError(t, err)
	env := decode(t, result)
	require.True(t, env.Success, "message: %s", env.Message)

	var data struct {
		Items    []*types.WorkItem `json:"items"`
		Total    int               `json:"total"`
		Returned int               `json:"returned"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Total)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "Fix login", data.Items[0].Title)
}

func TestQueryItemsSearchRoleChangedWindow(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{Title: "Task"}))

	search := func(args map[string]any) int {
		t.Helper()
		args["action"] = "search"
		result, err := srv.handleQueryItems(ctx, callReq(args))
		require.NoError(t, err)
		env := decode(t, result)
		require.True(t, env.Success, "message: %s", env.Message)
		var data struct {
			Total int `json:"total"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		return data.Total
	}

	assert.Equal(t, 1, search(map[string]any{"roleChangedBefore": "2099-01-01"}))
	assert.Equal(t, 0, search(map[string]any{"roleChangedBefore": "2000-01-01"}))
	assert.Equal(t, 1, search(map[string]any{"roleChangedAfter": "2000-01-01"}))
	assert.Equal(t, 0, search(map[string]any{"roleChangedAfter": "2099-01-01"}))
}

func TestQueryItemsSearchBadTimeExpr(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleQueryItems(context.Background(), callReq(map[string]any{
		"action":       "search",
		"createdAfter": "not a time at all xyz",
	}))
	require.NoError(t, err)
	env := decode(t, result)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errs.CodeValidation, env.Error.Code)
}

func TestExpandPattern(t *testing.T) {
	edges := func(pairs ...[2]string) [][2]string { return pairs }

	tests := []struct {
		name  string
		shape string
		items []string
		want  [][2]string
	}{
		{"linear", "linear", []string{"a", "b", "c"}, edges([2]string{"a", "b"}, [2]string{"b", "c"})},
		{"fan-out", "fan-out", []string{"a", "b", "c"}, edges([2]string{"a", "b"}, [2]string{"a", "c"})},
		{"fan-in", "fan-in", []string{"a", "b", "c"}, edges([2]string{"a", "c"}, [2]string{"b", "c"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, err := expandPattern(&DependencyPattern{Shape: tt.shape, Items: tt.items})
			require.NoError(t, err)
			require.Len(t, deps, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want[0], deps[i].FromItemID)
				assert.Equal(t, want[1], deps[i].ToItemID)
				assert.Equal(t, types.DepBlocks, deps[i].Type)
			}
		})
	}

	_, err := expandPattern(&DependencyPattern{Shape: "linear", Items: []string{"a"}})
	assert.True(t, errs.Is(err, errs.CodeValidation))

	_, err = expandPattern(&DependencyPattern{Shape: "ring", Items: []string{"a", "b"}})
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func TestManageDependenciesPattern(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		item := &types.WorkItem{Title: title}
		require.NoError(t, store.CreateItem(ctx, item))
		ids = append(ids, item.ID)
	}

	result, err := srv.handleManageDependencies(ctx, callReq(map[string]any{
		"action": "create",
		"pattern": map[string]any{
			"shape": "linear",
			"items": ids,
		},
	}))
	require.NoError(t, err)
	env := decode(t, result)
	require.True(t, env.Success, "message: %s", env.Message)

	all, err := store.AllDependencies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAdvanceItemSingle(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	item := &types.WorkItem{Title: "Task"}
	require.NoError(t, store.CreateItem(ctx, item))

	result, err := srv.handleAdvanceItem(ctx, callReq(map[string]any{
		"itemId":  item.ID,
		"trigger": "start",
	}))
	require.NoError(t, err)
	env := decode(t, result)
	require.True(t, env.Success, "message: %s", env.Message)

	var data struct {
		Item *types.WorkItem `json:"item"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, types.RoleWork, data.Item.Role)
}

func TestAdvanceItemNotFoundStaysInEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleAdvanceItem(context.Background(), callReq(map[string]any{
		"itemId":  "wi-ghost",
		"trigger": "start",
	}))
	require.NoError(t, err, "domain errors never surface as protocol errors")
	env := decode(t, result)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errs.CodeNotFound, env.Error.Code)
}

func TestGetNextItemEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetNextItem(context.Background(), callReq(nil))
	require.NoError(t, err)
	env := decode(t, result)
	assert.True(t, env.Success)
	assert.Equal(t, "no actionable items", env.Message)
}

func TestCreateAndCompleteTree(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleCreateWorkTree(ctx, callReq(map[string]any{
		"root": map[string]any{"title": "Feature"},
		"children": []any{
			map[string]any{"ref": "t1", "title": "Step one"},
			map[string]any{"ref": "t2", "title": "Step two"},
		},
		"deps": []any{
			map[string]any{"from": "t1", "to": "t2", "type": "BLOCKS"},
		},
	}))
	require.NoError(t, err)
	env := decode(t, result)
	require.True(t, env.Success, "message: %s", env.Message)

	var created struct {
		Root *types.WorkItem `json:"root"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	result, err = srv.handleCompleteTree(ctx, callReq(map[string]any{
		"rootId": created.Root.ID,
	}))
	require.NoError(t, err)
	env = decode(t, result)
	require.True(t, env.Success, "message: %s", env.Message)

	root, err := store.GetItem(ctx, created.Root.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleTerminal, root.Role)
}

func TestGetContextRequiresItemID(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetContext(context.Background(), callReq(map[string]any{}))
	require.NoError(t, err)
	env := decode(t, result)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errs.CodeValidation, env.Error.Code)
}
