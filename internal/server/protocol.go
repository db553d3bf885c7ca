package server

import (
	"github.com/untoldecay/loom/internal/types"
	"github.com/untoldecay/loom/internal/worktree"
)

// Typed argument structs, one per tool. Each handler binds the raw JSON
// arguments into its struct and validates before calling a service.

// ItemPayload is one item in a manage_items call. Pointer fields distinguish
// "absent" from zero values on update.
type ItemPayload struct {
	ID                   string  `json:"id,omitempty"`
	ParentID             string  `json:"parentId,omitempty"`
	Title                *string `json:"title,omitempty"`
	Summary              *string `json:"summary,omitempty"`
	Description          *string `json:"description,omitempty"`
	StatusLabel          *string `json:"statusLabel,omitempty"`
	Priority             *string `json:"priority,omitempty"`
	Complexity           *int    `json:"complexity,omitempty"`
	RequiresVerification *bool   `json:"requiresVerification,omitempty"`
	Metadata             *string `json:"metadata,omitempty"`
	Tags                 *string `json:"tags,omitempty"`
	Version              *int    `json:"version,omitempty"`
	Recursive            bool    `json:"recursive,omitempty"`
}

// ManageItemsArgs drives manage_items.
type ManageItemsArgs struct {
	Action string        `json:"action"`
	Items  []ItemPayload `json:"items"`
}

// QueryItemsArgs drives query_items.
type QueryItemsArgs struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids,omitempty"`

	// search
	ParentID          *string  `json:"parentId,omitempty"`
	Depth             *int     `json:"depth,omitempty"`
	Role              string   `json:"role,omitempty"`
	Priority          string   `json:"priority,omitempty"`
	StatusLabel       string   `json:"statusLabel,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Query             string   `json:"query,omitempty"`
	CreatedAfter      string   `json:"createdAfter,omitempty"`
	CreatedBefore     string   `json:"createdBefore,omitempty"`
	ModifiedAfter     string   `json:"modifiedAfter,omitempty"`
	ModifiedBefore    string   `json:"modifiedBefore,omitempty"`
	RoleChangedAfter  string   `json:"roleChangedAfter,omitempty"`
	RoleChangedBefore string   `json:"roleChangedBefore,omitempty"`
	SortBy            string   `json:"sortBy,omitempty"`
	SortDesc          bool     `json:"sortDesc,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	Offset            int      `json:"offset,omitempty"`
	IncludeAncestors  bool     `json:"includeAncestors,omitempty"`
	Minimal           bool     `json:"minimal,omitempty"`

	// overview
	ID              string `json:"id,omitempty"`
	IncludeChildren bool   `json:"includeChildren,omitempty"`
}

// ManageNotesArgs drives manage_notes.
type ManageNotesArgs struct {
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
	ItemID string `json:"itemId,omitempty"`
	Key    string `json:"key,omitempty"`
	Role   string `json:"role,omitempty"`
	Body   string `json:"body,omitempty"`
}

// QueryNotesArgs drives query_notes.
type QueryNotesArgs struct {
	ItemID       string `json:"itemId"`
	Role         string `json:"role,omitempty"`
	Key          string `json:"key,omitempty"`
	MetadataOnly bool   `json:"metadataOnly,omitempty"`
}

// DependencyPayload is one edge in a manage_dependencies call.
type DependencyPayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type,omitempty"`
	UnblockAt string `json:"unblockAt,omitempty"`
}

// DependencyPattern expands to individual edges: linear chains items in
// order, fan-out blocks all later items on the first, fan-in blocks the last
// item on all earlier ones.
type DependencyPattern struct {
	Shape     string   `json:"shape"`
	Items     []string `json:"items"`
	UnblockAt string   `json:"unblockAt,omitempty"`
}

// ManageDependenciesArgs drives manage_dependencies.
type ManageDependenciesArgs struct {
	Action       string              `json:"action"`
	Dependencies []DependencyPayload `json:"dependencies,omitempty"`
	Pattern      *DependencyPattern  `json:"pattern,omitempty"`
}

// QueryDependenciesArgs drives query_dependencies.
type QueryDependenciesArgs struct {
	ItemID   string `json:"itemId"`
	Mode     string `json:"mode,omitempty"` // neighbors (default) or traverse
	MaxDepth int    `json:"maxDepth,omitempty"`
}

// AdvanceItemArgs drives advance_item: single form or batch form.
type AdvanceItemArgs struct {
	ItemID      string              `json:"itemId,omitempty"`
	Trigger     string              `json:"trigger,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Transitions []TransitionPayload `json:"transitions,omitempty"`
}

// TransitionPayload is one entry of a batch advance.
type TransitionPayload struct {
	ItemID  string `json:"itemId"`
	Trigger string `json:"trigger"`
	Summary string `json:"summary,omitempty"`
}

// CreateWorkTreeArgs drives create_work_tree.
type CreateWorkTreeArgs struct {
	Root        worktree.ItemSpec    `json:"root"`
	ParentID    string               `json:"parentId,omitempty"`
	Children    []worktree.ChildSpec `json:"children,omitempty"`
	Deps        []worktree.DepSpec   `json:"deps,omitempty"`
	CreateNotes bool                 `json:"createNotes,omitempty"`
}

// CompleteTreeArgs drives complete_tree.
type CompleteTreeArgs struct {
	RootID          string   `json:"rootId,omitempty"`
	RootIDs         []string `json:"rootIds,omitempty"`
	Mode            string   `json:"mode,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	CleanupChildren bool     `json:"cleanupChildren,omitempty"`
}

func (a *ItemPayload) toUpdate() *types.ItemUpdate {
	u := &types.ItemUpdate{
		Title:                a.Title,
		Summary:              a.Summary,
		Description:          a.Description,
		StatusLabel:          a.StatusLabel,
		Complexity:           a.Complexity,
		RequiresVerification: a.RequiresVerification,
		Metadata:             a.Metadata,
		Tags:                 a.Tags,
		Version:              a.Version,
	}
	if a.Priority != nil {
		p := types.Priority(*a.Priority)
		u.Priority = &p
	}
	return u
}
