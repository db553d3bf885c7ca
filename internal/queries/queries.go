// Package queries implements the read-side services: search, overview, the
// next-item recommender, blocked-item analysis and the per-item context
// bundle.
package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/gate"
	"github.com/untoldecay/loom/internal/graph"
	"github.com/untoldecay/loom/internal/rsm"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/types"
)

// Service answers read-only queries against the store.
type Service struct {
	store    storage.Store
	registry *schema.Registry
	gates    *gate.Evaluator
	clock    func() time.Time
}

// NewService creates a query service.
func NewService(store storage.Store, registry *schema.Registry) *Service {
	return &Service{
		store:    store,
		registry: registry,
		gates:    gate.NewEvaluator(registry),
		clock:    time.Now,
	}
}

var whenParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseTimeExpr accepts RFC 3339 timestamps, plain dates, or English
// relative expressions ("3 days ago", "yesterday").
func (s *Service) ParseTimeExpr(expr string) (time.Time, error) {
	if expr == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, expr); err == nil {
			return t, nil
		}
	}
	if r, err := whenParser.Parse(expr, s.clock()); err == nil && r != nil {
		return r.Time, nil
	}
	return time.Time{}, errs.Validation("cannot parse time expression %q", expr)
}

// ItemSummary is the minimal search projection.
type ItemSummary struct {
	ID          string         `json:"id"`
	ParentID    *string        `json:"parent_id,omitempty"`
	Depth       int            `json:"depth"`
	Title       string         `json:"title"`
	Role        types.Role     `json:"role"`
	StatusLabel string         `json:"status_label,omitempty"`
	Priority    types.Priority `json:"priority"`
}

func summarize(it *types.WorkItem) ItemSummary {
	return ItemSummary{
		ID:          it.ID,
		ParentID:    it.ParentID,
		Depth:       it.Depth,
		Title:       it.Title,
		Role:        it.Role,
		StatusLabel: it.StatusLabel,
		Priority:    it.Priority,
	}
}

// SearchRequest extends the store filter with projection options.
type SearchRequest struct {
	Filter           types.ItemFilter
	IncludeAncestors bool
	Minimal          bool
}

// SearchResponse is one page of matches, optionally with ancestor chains.
type SearchResponse struct {
	Items     []*types.WorkItem            `json:"items,omitempty"`
	Summaries []ItemSummary                `json:"summaries,omitempty"`
	Ancestors map[string][]*types.WorkItem `json:"ancestors,omitempty"`
	Total     int                          `json:"total"`
	Returned  int                          `json:"returned"`
	Limit     int                          `json:"limit"`
	Offset    int                          `json:"offset"`
}

// Search runs a filtered, paginated item search.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	result, err := s.store.FindItems(ctx, req.Filter)
	if err != nil {
		return nil, err
	}
	resp := &SearchResponse{
		Total:    result.Total,
		Returned: result.Returned,
		Limit:    result.Limit,
		Offset:   result.Offset,
	}
	if req.Minimal {
		resp.Summaries = make([]ItemSummary, len(result.Items))
		for i, it := range result.Items {
			resp.Summaries[i] = summarize(it)
		}
	} else {
		resp.Items = result.Items
	}
	if req.IncludeAncestors {
		resp.Ancestors = make(map[string][]*types.WorkItem)
		for _, it := range result.Items {
			if it.ParentID == nil {
				continue
			}
			chain, err := s.store.AncestorChain(ctx, it.ID)
			if err != nil {
				return nil, err
			}
			resp.Ancestors[it.ID] = chain
		}
	}
	return resp, nil
}

// ItemOverview is one item with its direct children and their role rollup.
type ItemOverview struct {
	Item        *types.WorkItem   `json:"item"`
	ChildCounts types.RoleCounts  `json:"childCounts"`
	Children    []*types.WorkItem `json:"children,omitempty"`
}

// RootsOverview is the no-ID overview: every root with its rollup plus
// store-wide statistics.
type RootsOverview struct {
	Roots      []*ItemOverview   `json:"roots"`
	Statistics *types.Statistics `json:"statistics"`
}

// Overview returns the child rollup for one item.
func (s *Service) Overview(ctx context.Context, itemID string, includeChildren bool) (*ItemOverview, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.ChildRoleCounts(ctx, itemID)
	if err != nil {
		return nil, err
	}
	ov := &ItemOverview{Item: item, ChildCounts: counts}
	if includeChildren {
		ov.Children, err = s.store.ListChildren(ctx, itemID)
		if err != nil {
			return nil, err
		}
	}
	return ov, nil
}

// OverviewRoots returns every root item with its rollup and store statistics.
func (s *Service) OverviewRoots(ctx context.Context, includeChildren bool) (*RootsOverview, error) {
	roots, err := s.store.ListRoots(ctx)
	if err != nil {
		return nil, err
	}
	out := &RootsOverview{}
	for _, root := range roots {
		ov, err := s.Overview(ctx, root.ID, includeChildren)
		if err != nil {
			return nil, err
		}
		out.Roots = append(out.Roots, ov)
	}
	out.Statistics, err = s.store.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NextItem recommends the single most actionable item: neither blocked nor
// terminal, no open blockers, highest priority, deepest first, oldest first.
// Nil when nothing is ready.
func (s *Service) NextItem(ctx context.Context) (*types.WorkItem, error) {
	items, err := s.store.ActionableItems(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// BlockedItems enumerates items held by at least one open blocker.
func (s *Service) BlockedItems(ctx context.Context) ([]*types.BlockedItem, error) {
	return s.store.BlockedItems(ctx)
}

// ContextBundle is the one-call session-resume payload for an item.
type ContextBundle struct {
	Item          *types.WorkItem     `json:"item"`
	Parent        *types.WorkItem     `json:"parent,omitempty"`
	Children      []*types.WorkItem   `json:"children,omitempty"`
	Notes         []*types.Note       `json:"notes,omitempty"`
	ExpectedNotes []gate.ExpectedNote `json:"expectedNotes,omitempty"`
	GateStatus    gate.Status         `json:"gateStatus"`
	OpenBlockers  []types.BlockerInfo `json:"openBlockers,omitempty"`
	Triggers      []types.Trigger     `json:"triggers,omitempty"`
	FlowPosition  int                 `json:"flowPosition"`
}

// Context assembles the session-resume bundle for one item.
func (s *Service) Context(ctx context.Context, itemID string) (*ContextBundle, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	bundle := &ContextBundle{
		Item:         item,
		Triggers:     rsm.Triggers(item),
		FlowPosition: s.registry.FlowPosition(item.Role),
	}

	if item.ParentID != nil {
		bundle.Parent, err = s.store.GetItem(ctx, *item.ParentID)
		if err != nil {
			return nil, fmt.Errorf("loading parent of %s: %w", itemID, err)
		}
	}
	bundle.Children, err = s.store.ListChildren(ctx, itemID)
	if err != nil {
		return nil, err
	}
	bundle.Notes, err = s.store.FindNotes(ctx, types.NoteFilter{ItemID: itemID})
	if err != nil {
		return nil, err
	}

	// Gate state for advancing out of the current role.
	ev := s.gates.Evaluate(item, bundle.Notes, types.RoleTerminal)
	bundle.ExpectedNotes = ev.ExpectedNotes
	bundle.GateStatus = ev.GateStatus

	bundle.OpenBlockers, err = s.store.OpenBlockers(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// TraverseDependencies walks the dependency graph from a seed item.
func (s *Service) TraverseDependencies(ctx context.Context, seed string, maxDepth int) ([]graph.TraversalNode, error) {
	if _, err := s.store.GetItem(ctx, seed); err != nil {
		return nil, err
	}
	deps, err := s.store.AllDependencies(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Traverse(seed, deps, maxDepth), nil
}

// NeighborDependencies returns the edges touching one item.
func (s *Service) NeighborDependencies(ctx context.Context, itemID string) ([]*types.Dependency, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.DependenciesOf(ctx, itemID)
}
