// Package workflow orchestrates role transitions: single and batch
// advance_item plus the read-only next-status recommendation.
package workflow

import (
	"context"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/gate"
	"github.com/untoldecay/loom/internal/rsm"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/types"
	"github.com/untoldecay/loom/internal/validation"
)

// Service runs the transition protocol against the store.
type Service struct {
	store    storage.Store
	registry *schema.Registry
	gates    *gate.Evaluator
}

// NewService creates a workflow service over the given store and schema.
func NewService(store storage.Store, registry *schema.Registry) *Service {
	return &Service{
		store:    store,
		registry: registry,
		gates:    gate.NewEvaluator(registry),
	}
}

// TransitionRequest asks for one role transition.
type TransitionRequest struct {
	ItemID  string        `json:"itemId"`
	Trigger types.Trigger `json:"trigger"`
	Summary string        `json:"summary,omitempty"`
}

// AdvanceResult reports one applied transition.
type AdvanceResult struct {
	Item           *types.WorkItem       `json:"item"`
	PreviousRole   types.Role            `json:"previousRole"`
	NewRole        types.Role            `json:"newRole"`
	FlowPosition   int                   `json:"flowPosition"`
	CascadeEvents  []*types.CascadeEvent `json:"cascadeEvents,omitempty"`
	UnblockedItems []*types.WorkItem     `json:"unblockedItems,omitempty"`
}

// Advance applies a single transition in its own transaction.
func (s *Service) Advance(ctx context.Context, req TransitionRequest) (*AdvanceResult, error) {
	var result *AdvanceResult
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		result, err = s.advanceOne(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdvanceBatch applies transitions in input order inside one transaction.
// Any failure rolls the whole batch back; the error carries the failing index.
func (s *Service) AdvanceBatch(ctx context.Context, reqs []TransitionRequest) ([]*AdvanceResult, error) {
	if len(reqs) == 0 {
		return nil, errs.Validation("transitions list is empty")
	}
	results := make([]*AdvanceResult, 0, len(reqs))
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for i, req := range reqs {
			res, err := s.advanceOne(ctx, tx, req)
			if err != nil {
				if e := errs.As(err); e != nil {
					return e.WithExtra("failedIndex", i)
				}
				return errs.Wrap(errs.CodeOperationFailed, err, "transition %d failed", i).
					WithExtra("failedIndex", i)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// advanceOne runs the transition protocol for one request inside an open
// transaction: load, resolve, gate check, blocker check for start, then the
// role write, the audit row, cascade candidates and unblock events.
func (s *Service) advanceOne(ctx context.Context, tx storage.Transaction, req TransitionRequest) (*AdvanceResult, error) {
	if err := validation.ValidTrigger(req.Trigger); err != nil {
		return nil, err
	}
	item, err := tx.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	target, err := rsm.Resolve(item, req.Trigger)
	if err != nil {
		return nil, err
	}

	notes, err := tx.NotesFor(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if err := s.gates.Check(item, notes, target); err != nil {
		return nil, err
	}

	if req.Trigger == types.TriggerStart {
		blockers, err := tx.OpenBlockers(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if len(blockers) > 0 {
			ids := make([]string, len(blockers))
			for i, b := range blockers {
				ids[i] = b.ItemID
			}
			return nil, errs.New(errs.CodeDependencyBlocked,
				"item %s is blocked by unfinished dependencies", item.ID).
				WithExtra("blockers", blockers).
				WithExtra("blockerIds", ids)
		}
	}

	// previousRole records the role being left so resume can return to it.
	// A blocked item leaving blocked keeps its original previous role.
	newPrev := item.Role
	if target == types.RoleBlocked && item.Role == types.RoleBlocked {
		newPrev = item.PreviousRole
	}

	fromStatus := item.EffectiveStatusLabel()
	updated, err := tx.SetItemRole(ctx, item.ID, target, newPrev, "")
	if err != nil {
		return nil, err
	}

	if err := tx.RecordTransition(ctx, &types.RoleTransition{
		EntityID:   item.ID,
		EntityType: types.EntityItem,
		FromRole:   item.Role,
		ToRole:     target,
		FromStatus: fromStatus,
		ToStatus:   updated.EffectiveStatusLabel(),
		Trigger:    req.Trigger,
		Summary:    req.Summary,
	}); err != nil {
		return nil, err
	}

	result := &AdvanceResult{
		Item:         updated,
		PreviousRole: item.Role,
		NewRole:      target,
		FlowPosition: s.registry.FlowPosition(target),
	}

	if item.ParentID != nil {
		parent, err := tx.GetItem(ctx, *item.ParentID)
		if err != nil {
			return nil, err
		}
		if target == types.RoleTerminal {
			counts, err := tx.ChildRoleCounts(ctx, parent.ID)
			if err != nil {
				return nil, err
			}
			if ev := rsm.CascadeOnTerminal(parent, counts); ev != nil {
				result.CascadeEvents = append(result.CascadeEvents, ev)
			}
		}
		if req.Trigger == types.TriggerStart {
			if ev := rsm.CascadeOnStart(parent); ev != nil {
				result.CascadeEvents = append(result.CascadeEvents, ev)
			}
		}
	}

	if target.Rank() > item.Role.Rank() {
		unblocked, err := tx.NewlyUnblocked(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		for _, u := range unblocked {
			if u.ID != item.ID {
				result.UnblockedItems = append(result.UnblockedItems, u)
			}
		}
	}
	return result, nil
}

// TriggerOption describes one legal trigger for an item's current role, with
// the gate and dependency analysis a caller needs to pick one.
type TriggerOption struct {
	Trigger      types.Trigger       `json:"trigger"`
	TargetRole   types.Role          `json:"targetRole"`
	GateStatus   gate.Status         `json:"gateStatus"`
	MissingNotes []string            `json:"missingNotes,omitempty"`
	Blocked      bool                `json:"blocked"`
	Blockers     []types.BlockerInfo `json:"blockers,omitempty"`
}

// NextStatusReport is the read-only recommendation for one item.
type NextStatusReport struct {
	Item          *types.WorkItem     `json:"item"`
	FlowPosition  int                 `json:"flowPosition"`
	ExpectedNotes []gate.ExpectedNote `json:"expectedNotes,omitempty"`
	Options       []TriggerOption     `json:"options"`
}

// NextStatus reports the triggers legal for the item right now, each with its
// gate status and whether open dependencies would block it. Read-only.
func (s *Service) NextStatus(ctx context.Context, itemID string) (*NextStatusReport, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	notes, err := s.store.FindNotes(ctx, types.NoteFilter{ItemID: itemID})
	if err != nil {
		return nil, err
	}
	blockers, err := s.store.OpenBlockers(ctx, itemID)
	if err != nil {
		return nil, err
	}

	report := &NextStatusReport{
		Item:         item,
		FlowPosition: s.registry.FlowPosition(item.Role),
	}
	evaluation := s.gates.Evaluate(item, notes, item.Role)
	report.ExpectedNotes = evaluation.ExpectedNotes

	for _, trigger := range rsm.Triggers(item) {
		target, err := rsm.Resolve(item, trigger)
		if err != nil {
			continue
		}
		opt := TriggerOption{Trigger: trigger, TargetRole: target}
		ev := s.gates.Evaluate(item, notes, target)
		opt.GateStatus = ev.GateStatus
		opt.MissingNotes = ev.MissingRequiredNotes
		if trigger == types.TriggerStart && len(blockers) > 0 {
			opt.Blocked = true
			opt.Blockers = blockers
		}
		report.Options = append(report.Options, opt)
	}
	return report, nil
}
