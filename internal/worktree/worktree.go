// Package worktree implements the compound tree operations: atomic tree
// materialization and topologically ordered batch completion.
package worktree

import (
	"context"
	"fmt"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/graph"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/types"
	"github.com/untoldecay/loom/internal/validation"
	"github.com/untoldecay/loom/internal/workflow"
)

// RootRef is the reserved ref designating the tree root in dep specs.
const RootRef = "root"

// Service runs the compound operations.
type Service struct {
	store    storage.Store
	registry *schema.Registry
	flow     *workflow.Service
}

// NewService creates a worktree service.
func NewService(store storage.Store, registry *schema.Registry, flow *workflow.Service) *Service {
	return &Service{store: store, registry: registry, flow: flow}
}

// ItemSpec describes one item to create.
type ItemSpec struct {
	Title                string         `json:"title"`
	Summary              string         `json:"summary,omitempty"`
	Description          string         `json:"description,omitempty"`
	Priority             types.Priority `json:"priority,omitempty"`
	Complexity           int            `json:"complexity,omitempty"`
	Tags                 string         `json:"tags,omitempty"`
	Metadata             string         `json:"metadata,omitempty"`
	RequiresVerification bool           `json:"requiresVerification,omitempty"`
}

// ChildSpec is an item spec with a caller-supplied local ref.
type ChildSpec struct {
	Ref string `json:"ref"`
	ItemSpec
}

// DepSpec references items by ref; "root" designates the tree root.
type DepSpec struct {
	From      string               `json:"from"`
	To        string               `json:"to"`
	Type      types.DependencyType `json:"type"`
	UnblockAt types.Role           `json:"unblockAt,omitempty"`
}

// CreateTreeRequest materializes one root, its children, dependencies between
// them, and optionally blank schema notes, all in one transaction.
type CreateTreeRequest struct {
	Root        ItemSpec    `json:"root"`
	ParentID    string      `json:"parentId,omitempty"`
	Children    []ChildSpec `json:"children,omitempty"`
	Deps        []DepSpec   `json:"deps,omitempty"`
	CreateNotes bool        `json:"createNotes,omitempty"`
}

// CreatedChild pairs a ref with its materialized item.
type CreatedChild struct {
	Ref  string          `json:"ref"`
	Item *types.WorkItem `json:"item"`
}

// CreatedNote pairs a blank schema note with the ref it was attached to.
type CreatedNote struct {
	ItemRef string      `json:"itemRef"`
	Note    *types.Note `json:"note"`
}

// CreateTreeResult reports the materialized tree with assigned IDs.
type CreateTreeResult struct {
	Root     *types.WorkItem     `json:"root"`
	Children []CreatedChild      `json:"children,omitempty"`
	Deps     []*types.Dependency `json:"deps,omitempty"`
	Notes    []CreatedNote       `json:"notes,omitempty"`
}

func newItem(spec ItemSpec, parentID *string) *types.WorkItem {
	return &types.WorkItem{
		ParentID:             parentID,
		Title:                spec.Title,
		Summary:              spec.Summary,
		Description:          spec.Description,
		Priority:             spec.Priority,
		Complexity:           spec.Complexity,
		Tags:                 spec.Tags,
		Metadata:             spec.Metadata,
		RequiresVerification: spec.RequiresVerification,
	}
}

// validateTreeRequest checks refs and the in-memory dep graph before any write.
func validateTreeRequest(req *CreateTreeRequest) error {
	refs := map[string]bool{RootRef: true}
	for _, c := range req.Children {
		if c.Ref == "" {
			return errs.Validation("every child needs a ref")
		}
		if c.Ref == RootRef {
			return errs.Validation("child ref %q is reserved for the tree root", RootRef)
		}
		if refs[c.Ref] {
			return errs.Validation("duplicate child ref %q", c.Ref)
		}
		refs[c.Ref] = true
	}

	var candidates []*types.Dependency
	for _, d := range req.Deps {
		if !refs[d.From] {
			return errs.Validation("dep references unknown ref %q", d.From)
		}
		if !refs[d.To] {
			return errs.Validation("dep references unknown ref %q", d.To)
		}
		edge := &types.Dependency{FromItemID: d.From, ToItemID: d.To, Type: d.Type, UnblockAt: d.UnblockAt}
		if err := edge.Validate(); err != nil {
			return errs.Validation("%v", err)
		}
		candidates = append(candidates, edge)
	}
	// Cycle check over refs before anything touches the database.
	return graph.CheckAcyclic(nil, candidates)
}

// CreateTree atomically materializes a work tree. Failure rolls the whole
// tree back.
func (s *Service) CreateTree(ctx context.Context, req *CreateTreeRequest) (*CreateTreeResult, error) {
	if err := validateTreeRequest(req); err != nil {
		return nil, err
	}

	var result *CreateTreeResult
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var parentID *string
		rootDepth := 0
		if req.ParentID != "" {
			parent, err := tx.GetItem(ctx, req.ParentID)
			if err != nil {
				return err
			}
			if err := validation.Run(parent, validation.NotTerminal(), validation.DepthBelow(types.MaxDepth)); err != nil {
				return err
			}
			rootDepth = parent.Depth + 1
			parentID = &req.ParentID
		}
		if len(req.Children) > 0 && rootDepth+1 > types.MaxDepth {
			return errs.Validation("root at depth %d cannot take children", rootDepth)
		}

		root := newItem(req.Root, parentID)
		if err := tx.CreateItem(ctx, root); err != nil {
			return err
		}
		result = &CreateTreeResult{Root: root}

		ids := map[string]string{RootRef: root.ID}
		for _, c := range req.Children {
			child := newItem(c.ItemSpec, &root.ID)
			if err := tx.CreateItem(ctx, child); err != nil {
				return err
			}
			ids[c.Ref] = child.ID
			result.Children = append(result.Children, CreatedChild{Ref: c.Ref, Item: child})
		}

		var deps []*types.Dependency
		for _, d := range req.Deps {
			deps = append(deps, &types.Dependency{
				FromItemID: ids[d.From],
				ToItemID:   ids[d.To],
				Type:       d.Type,
				UnblockAt:  d.UnblockAt,
			})
		}
		if err := tx.CreateDependencies(ctx, deps); err != nil {
			return err
		}
		result.Deps = deps

		if req.CreateNotes {
			attach := func(ref string, item *types.WorkItem) error {
				for _, entry := range s.registry.ForTags(item.TagList()) {
					note, err := tx.UpsertNote(ctx, &types.Note{
						ItemID: item.ID, Key: entry.Key, Role: entry.Role,
					})
					if err != nil {
						return err
					}
					result.Notes = append(result.Notes, CreatedNote{ItemRef: ref, Note: note})
				}
				return nil
			}
			if err := attach(RootRef, root); err != nil {
				return err
			}
			for _, c := range result.Children {
				if err := attach(c.Ref, c.Item); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Mode of a complete_tree run.
type Mode string

const (
	ModeComplete Mode = "complete"
	ModeCancel   Mode = "cancel"
)

// CompleteTreeRequest batch-closes a subtree in dependency order.
type CompleteTreeRequest struct {
	RootIDs         []string `json:"rootIds"`
	Mode            Mode     `json:"mode"`
	Summary         string   `json:"summary,omitempty"`
	CleanupChildren bool     `json:"cleanupChildren,omitempty"`
}

// FailedItem reports the transition that halted a complete_tree run.
type FailedItem struct {
	ItemID  string    `json:"itemId"`
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

// CompleteTreeResult is the partial-commit outcome: everything listed in
// Completed stayed transitioned even when Failed is set.
type CompleteTreeResult struct {
	Order     []string    `json:"order"`
	Completed []string    `json:"completed"`
	Skipped   []string    `json:"skipped,omitempty"`
	Deleted   []string    `json:"deleted,omitempty"`
	Failed    *FailedItem `json:"failed,omitempty"`
}

// CompleteTree closes every item of the given subtrees, blockers and children
// first, the roots last. Each item transitions in its own transaction;
// a failure halts the run but keeps what already committed.
func (s *Service) CompleteTree(ctx context.Context, req *CompleteTreeRequest) (*CompleteTreeResult, error) {
	if len(req.RootIDs) == 0 {
		return nil, errs.Validation("at least one root ID is required")
	}
	if req.Mode != ModeComplete && req.Mode != ModeCancel {
		return nil, errs.Validation("mode must be %q or %q", ModeComplete, ModeCancel)
	}

	items := make(map[string]*types.WorkItem)
	parents := make(map[string]string)
	var ids []string
	for _, rootID := range req.RootIDs {
		subtree, err := s.store.Subtree(ctx, rootID)
		if err != nil {
			return nil, err
		}
		for _, it := range subtree {
			if _, seen := items[it.ID]; seen {
				continue
			}
			items[it.ID] = it
			ids = append(ids, it.ID)
			if it.ParentID != nil {
				parents[it.ID] = *it.ParentID
			}
		}
	}

	deps, err := s.store.DependenciesAmong(ctx, ids)
	if err != nil {
		return nil, err
	}
	order, err := graph.TopoOrder(ids, parents, deps)
	if err != nil {
		return nil, errs.Wrap(errs.CodeDependency, err, "cannot order subtree")
	}

	result := &CompleteTreeResult{Order: order}
	for _, id := range order {
		item := items[id]
		if item.Role == types.RoleTerminal {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if err := s.closeItem(ctx, id, item.Role, req); err != nil {
			e := errs.As(err)
			result.Failed = &FailedItem{ItemID: id, Code: errs.CodeOf(err)}
			if e != nil {
				result.Failed.Message = e.Message
			} else {
				result.Failed.Message = err.Error()
			}
			return result, nil
		}
		result.Completed = append(result.Completed, id)
	}

	if req.CleanupChildren && req.Mode == ModeComplete {
		deleted, err := s.cleanupChildren(ctx, req.RootIDs)
		if err != nil {
			return nil, err
		}
		result.Deleted = deleted
	}
	return result, nil
}

// closeItem drives one item to terminal through the workflow service,
// honoring the transition table for its current role.
func (s *Service) closeItem(ctx context.Context, id string, role types.Role, req *CompleteTreeRequest) error {
	if req.Mode == ModeCancel {
		_, err := s.flow.Advance(ctx, workflow.TransitionRequest{
			ItemID: id, Trigger: types.TriggerCancel, Summary: req.Summary,
		})
		return err
	}

	var triggers []types.Trigger
	switch role {
	case types.RoleQueue:
		triggers = []types.Trigger{types.TriggerStart, types.TriggerComplete}
	case types.RoleWork, types.RoleReview:
		triggers = []types.Trigger{types.TriggerComplete}
	default:
		return errs.New(errs.CodeInvalidTransition,
			"cannot complete item %s in role %s", id, role)
	}

	reqs := make([]workflow.TransitionRequest, len(triggers))
	for i, tr := range triggers {
		reqs[i] = workflow.TransitionRequest{ItemID: id, Trigger: tr, Summary: req.Summary}
	}
	_, err := s.flow.AdvanceBatch(ctx, reqs)
	return err
}

// cleanupChildren deletes terminal children under newly completed roots,
// keeping anything tagged with a preserve-on-cleanup tag.
func (s *Service) cleanupChildren(ctx context.Context, rootIDs []string) ([]string, error) {
	var deleted []string
	for _, rootID := range rootIDs {
		root, err := s.store.GetItem(ctx, rootID)
		if err != nil {
			return nil, err
		}
		if root.Role != types.RoleTerminal {
			continue
		}
		children, err := s.store.ListChildren(ctx, rootID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if child.Role != types.RoleTerminal {
				continue
			}
			if s.registry.Preserve(child.TagList()) {
				continue
			}
			if err := s.store.DeleteItem(ctx, child.ID, true); err != nil {
				return nil, fmt.Errorf("cleanup of %s: %w", child.ID, err)
			}
			deleted = append(deleted, child.ID)
		}
	}
	return deleted, nil
}
