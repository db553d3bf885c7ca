package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
	"github.com/untoldecay/loom/internal/workflow"
	"github.com/untoldecay/loom/internal/worktree"
)

func (s *Server) handleManageDependencies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args ManageDependenciesArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}

	switch args.Action {
	case "create":
		deps := make([]*types.Dependency, 0, len(args.Dependencies))
		for _, p := range args.Dependencies {
			deps = append(deps, payloadToDependency(p))
		}
		if args.Pattern != nil {
			expanded, err := expandPattern(args.Pattern)
			if err != nil {
				return fail(err)
			}
			deps = append(deps, expanded...)
		}
		if len(deps) == 0 {
			return failValidation("nothing to create: provide dependencies or a pattern")
		}
		if err := s.store.CreateDependencies(ctx, deps); err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("created %d dependencies", len(deps)), map[string]any{"dependencies": deps})

	case "delete":
		if len(args.Dependencies) != 1 {
			return failValidation("delete takes exactly one dependency entry")
		}
		p := args.Dependencies[0]
		dep := payloadToDependency(p)
		if err := s.store.DeleteDependency(ctx, dep.FromItemID, dep.ToItemID, dep.Type); err != nil {
			return fail(err)
		}
		return ok("dependency deleted", nil)

	default:
		return failValidation("unknown action %q (want create or delete)", args.Action)
	}
}

func payloadToDependency(p DependencyPayload) *types.Dependency {
	d := &types.Dependency{
		FromItemID: p.From,
		ToItemID:   p.To,
		Type:       types.DependencyType(p.Type),
		UnblockAt:  types.Role(p.UnblockAt),
	}
	if d.Type == "" {
		d.Type = types.DepBlocks
	}
	return d
}

// expandPattern turns a shape over an ordered item list into BLOCKS edges.
func expandPattern(p *DependencyPattern) ([]*types.Dependency, error) {
	if len(p.Items) < 2 {
		return nil, errs.Validation("pattern needs at least two items")
	}
	unblockAt := types.Role(p.UnblockAt)
	edge := func(from, to string) *types.Dependency {
		return &types.Dependency{
			FromItemID: from,
			ToItemID:   to,
			Type:       types.DepBlocks,
			UnblockAt:  unblockAt,
		}
	}

	var deps []*types.Dependency
	switch p.Shape {
	case "linear":
		for i := 0; i < len(p.Items)-1; i++ {
			deps = append(deps, edge(p.Items[i], p.Items[i+1]))
		}
	case "fan-out":
		for _, to := range p.Items[1:] {
			deps = append(deps, edge(p.Items[0], to))
		}
	case "fan-in":
		last := p.Items[len(p.Items)-1]
		for _, from := range p.Items[:len(p.Items)-1] {
			deps = append(deps, edge(from, last))
		}
	default:
		return nil, errs.Validation("unknown pattern shape %q (want linear, fan-out or fan-in)", p.Shape)
	}
	return deps, nil
}

func (s *Server) handleQueryDependencies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args QueryDependenciesArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}
	if args.ItemID == "" {
		return failValidation("itemId is required")
	}

	switch args.Mode {
	case "", "neighbors":
		deps, err := s.queries.NeighborDependencies(ctx, args.ItemID)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%d edge(s)", len(deps)), map[string]any{"dependencies": deps})

	case "traverse":
		maxDepth := args.MaxDepth
		if maxDepth <= 0 {
			maxDepth = 3
		}
		nodes, err := s.queries.TraverseDependencies(ctx, args.ItemID, maxDepth)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%d node(s)", len(nodes)), map[string]any{"nodes": nodes, "maxDepth": maxDepth})

	default:
		return failValidation("unknown mode %q (want neighbors or traverse)", args.Mode)
	}
}

func (s *Server) handleAdvanceItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args AdvanceItemArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}

	if len(args.Transitions) > 0 {
		if args.ItemID != "" || args.Trigger != "" {
			return failValidation("use either the single form or transitions, not both")
		}
		reqs := make([]workflow.TransitionRequest, len(args.Transitions))
		for i, t := range args.Transitions {
			reqs[i] = workflow.TransitionRequest{
				ItemID:  t.ItemID,
				Trigger: types.Trigger(t.Trigger),
				Summary: t.Summary,
			}
		}
		results, err := s.flow.AdvanceBatch(ctx, reqs)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("applied %d transition(s)", len(results)), map[string]any{"results": results})
	}

	if args.ItemID == "" || args.Trigger == "" {
		return failValidation("itemId and trigger are required")
	}
	result, err := s.flow.Advance(ctx, workflow.TransitionRequest{
		ItemID:  args.ItemID,
		Trigger: types.Trigger(args.Trigger),
		Summary: args.Summary,
	})
	if err != nil {
		return fail(err)
	}
	msg := fmt.Sprintf("%s: %s -> %s", result.Item.ID, result.PreviousRole, result.NewRole)
	return ok(msg, result)
}

func (s *Server) handleGetNextStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID, err := req.RequireString("itemId")
	if err != nil {
		return failValidation("itemId is required")
	}
	report, err := s.flow.NextStatus(ctx, itemID)
	if err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("%d trigger(s) available", len(report.Options)), report)
}

func (s *Server) handleGetNextItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	item, err := s.queries.NextItem(ctx)
	if err != nil {
		return fail(err)
	}
	if item == nil {
		return ok("no actionable items", nil)
	}
	return ok(fmt.Sprintf("next: %s", item.ID), map[string]any{"item": item})
}

func (s *Server) handleGetBlockedItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blocked, err := s.queries.BlockedItems(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("%d blocked item(s)", len(blocked)), map[string]any{"items": blocked})
}

func (s *Server) handleCreateWorkTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CreateWorkTreeArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}
	result, err := s.trees.CreateTree(ctx, &worktree.CreateTreeRequest{
		Root:        args.Root,
		ParentID:    args.ParentID,
		Children:    args.Children,
		Deps:        args.Deps,
		CreateNotes: args.CreateNotes,
	})
	if err != nil {
		return fail(err)
	}
	msg := fmt.Sprintf("created tree %s with %d children", result.Root.ID, len(result.Children))
	return ok(msg, result)
}

func (s *Server) handleCompleteTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CompleteTreeArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}
	rootIDs := args.RootIDs
	if args.RootID != "" {
		rootIDs = append([]string{args.RootID}, rootIDs...)
	}
	mode := worktree.Mode(args.Mode)
	if mode == "" {
		mode = worktree.ModeComplete
	}
	result, err := s.trees.CompleteTree(ctx, &worktree.CompleteTreeRequest{
		RootIDs:         rootIDs,
		Mode:            mode,
		Summary:         args.Summary,
		CleanupChildren: args.CleanupChildren,
	})
	if err != nil {
		return fail(err)
	}
	msg := fmt.Sprintf("completed %d of %d item(s)", len(result.Completed), len(result.Order))
	if result.Failed != nil {
		msg = fmt.Sprintf("halted at %s after %d item(s)", result.Failed.ItemID, len(result.Completed))
	}
	return ok(msg, result)
}

func (s *Server) handleGetContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID, err := req.RequireString("itemId")
	if err != nil {
		return failValidation("itemId is required")
	}
	bundle, err := s.queries.Context(ctx, itemID)
	if err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("context for %s", itemID), bundle)
}
