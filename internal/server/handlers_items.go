package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/queries"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/types"
)

func (s *Server) handleManageItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args ManageItemsArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}
	if len(args.Items) == 0 {
		return failValidation("items list is empty")
	}

	// Array-valued actions are all-or-nothing: the batch runs in one
	// transaction, so a failure at any index persists nothing.
	switch args.Action {
	case "create":
		items := make([]*types.WorkItem, 0, len(args.Items))
		for i, payload := range args.Items {
			if payload.Title == nil || *payload.Title == "" {
				return failValidation("item %d: title is required", i)
			}
			items = append(items, itemFromPayload(payload))
		}
		err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			for _, item := range items {
				if err := tx.CreateItem(ctx, item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("created %d item(s)", len(items)), map[string]any{"items": items})

	case "update":
		for i, payload := range args.Items {
			if payload.ID == "" {
				return failValidation("item %d: id is required for update", i)
			}
		}
		updated := make([]*types.WorkItem, 0, len(args.Items))
		err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			for _, payload := range args.Items {
				item, err := tx.UpdateItem(ctx, payload.ID, payload.toUpdate())
				if err != nil {
					return err
				}
				updated = append(updated, item)
			}
			return nil
		})
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("updated %d item(s)", len(updated)), map[string]any{"items": updated})

	case "delete":
		for i, payload := range args.Items {
			if payload.ID == "" {
				return failValidation("item %d: id is required for delete", i)
			}
		}
		deleted := make([]string, 0, len(args.Items))
		err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			for _, payload := range args.Items {
				if err := tx.DeleteItem(ctx, payload.ID, payload.Recursive); err != nil {
					return err
				}
				deleted = append(deleted, payload.ID)
			}
			return nil
		})
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("deleted %d item(s)", len(deleted)), map[string]any{"ids": deleted})

	default:
		return failValidation("unknown action %q (want create, update or delete)", args.Action)
	}
}

func itemFromPayload(payload ItemPayload) *types.WorkItem {
	item := &types.WorkItem{}
	if payload.Title != nil {
		item.Title = *payload.Title
	}
	if payload.ParentID != "" {
		item.ParentID = &payload.ParentID
	}
	if payload.Summary != nil {
		item.Summary = *payload.Summary
	}
	if payload.Description != nil {
		item.Description = *payload.Description
	}
	if payload.StatusLabel != nil {
		item.StatusLabel = *payload.StatusLabel
	}
	if payload.Priority != nil {
		item.Priority = types.Priority(*payload.Priority)
	}
	if payload.Complexity != nil {
		item.Complexity = *payload.Complexity
	}
	if payload.RequiresVerification != nil {
		item.RequiresVerification = *payload.RequiresVerification
	}
	if payload.Metadata != nil {
		item.Metadata = *payload.Metadata
	}
	if payload.Tags != nil {
		item.Tags = *payload.Tags
	}
	return item
}

func (s *Server) handleQueryItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args QueryItemsArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}

	switch args.Action {
	case "get":
		if len(args.IDs) == 0 {
			return failValidation("ids list is empty")
		}
		items, err := s.store.GetItems(ctx, args.IDs)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%d item(s)", len(items)), map[string]any{"items": items})

	case "search":
		filter, err := s.buildFilter(&args)
		if err != nil {
			return fail(err)
		}
		resp, err := s.queries.Search(ctx, queries.SearchRequest{
			Filter:           *filter,
			IncludeAncestors: args.IncludeAncestors,
			Minimal:          args.Minimal,
		})
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%d of %d match(es)", resp.Returned, resp.Total), resp)

	case "overview":
		if args.ID != "" {
			ov, err := s.queries.Overview(ctx, args.ID, args.IncludeChildren)
			if err != nil {
				return fail(err)
			}
			return ok("overview", ov)
		}
		ov, err := s.queries.OverviewRoots(ctx, args.IncludeChildren)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%d root(s)", len(ov.Roots)), ov)

	default:
		return failValidation("unknown action %q (want get, search or overview)", args.Action)
	}
}

// buildFilter translates search arguments, parsing time expressions.
func (s *Server) buildFilter(args *QueryItemsArgs) (*types.ItemFilter, error) {
	filter := &types.ItemFilter{
		ParentID:    args.ParentID,
		Depth:       args.Depth,
		Role:        types.Role(args.Role),
		Priority:    types.Priority(args.Priority),
		StatusLabel: args.StatusLabel,
		Tags:        args.Tags,
		Query:       args.Query,
		SortBy:      types.SortField(args.SortBy),
		SortDesc:    args.SortDesc,
		Limit:       args.Limit,
		Offset:      args.Offset,
	}
	if filter.Role != "" && !filter.Role.IsValid() {
		return nil, errs.Validation("invalid role filter: %s", filter.Role)
	}
	if filter.Priority != "" && !filter.Priority.IsValid() {
		return nil, errs.Validation("invalid priority filter: %s", filter.Priority)
	}

	windows := []struct {
		expr string
		dest *time.Time
	}{
		{args.CreatedAfter, &filter.Created.After},
		{args.CreatedBefore, &filter.Created.Before},
		{args.ModifiedAfter, &filter.Modified.After},
		{args.ModifiedBefore, &filter.Modified.Before},
		{args.RoleChangedAfter, &filter.RoleChanged.After},
		{args.RoleChangedBefore, &filter.RoleChanged.Before},
	}
	for _, w := range windows {
		if w.expr == "" {
			continue
		}
		t, err := s.queries.ParseTimeExpr(w.expr)
		if err != nil {
			return nil, err
		}
		*w.dest = t
	}
	return filter, nil
}

func (s *Server) handleManageNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args ManageNotesArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}

	switch args.Action {
	case "upsert":
		if args.ItemID == "" || args.Key == "" {
			return failValidation("itemId and key are required")
		}
		note, err := s.store.UpsertNote(ctx, &types.Note{
			ItemID: args.ItemID,
			Key:    args.Key,
			Role:   types.Role(args.Role),
			Body:   args.Body,
		})
		if err != nil {
			return fail(err)
		}
		return ok("note saved", map[string]any{"note": note})

	case "delete":
		if args.ID == 0 {
			return failValidation("id is required for delete")
		}
		if err := s.store.DeleteNote(ctx, args.ID); err != nil {
			return fail(err)
		}
		return ok("note deleted", nil)

	default:
		return failValidation("unknown action %q (want upsert or delete)", args.Action)
	}
}

func (s *Server) handleQueryNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args QueryNotesArgs
	if err := req.BindArguments(&args); err != nil {
		return failValidation("invalid arguments: %v", err)
	}
	if args.ItemID == "" {
		return failValidation("itemId is required")
	}
	if _, err := s.store.GetItem(ctx, args.ItemID); err != nil {
		return fail(err)
	}
	notes, err := s.store.FindNotes(ctx, types.NoteFilter{
		ItemID:       args.ItemID,
		Role:         types.Role(args.Role),
		Key:          args.Key,
		MetadataOnly: args.MetadataOnly,
	})
	if err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("%d note(s)", len(notes)), map[string]any{"notes": notes})
}
