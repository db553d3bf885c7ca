// Package rsm implements the role state machine.
//
// Roles form a small DAG with a fixed transition table keyed on (role,
// trigger). Status labels refine within a role and never affect legality.
package rsm

import (
	"fmt"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

// rule is one row of the canonical transition table.
type rule struct {
	from    types.Role
	trigger types.Trigger
	to      types.Role
}

// resume and cancel are handled specially: resume targets the item's
// previous role, cancel accepts any non-terminal source.
var table = []rule{
	{types.RoleQueue, types.TriggerStart, types.RoleWork},
	{types.RoleWork, types.TriggerComplete, types.RoleTerminal},
	{types.RoleReview, types.TriggerComplete, types.RoleTerminal},
	{types.RoleQueue, types.TriggerBlock, types.RoleBlocked},
	{types.RoleWork, types.TriggerBlock, types.RoleBlocked},
	{types.RoleReview, types.TriggerBlock, types.RoleBlocked},
	{types.RoleQueue, types.TriggerHold, types.RoleBlocked},
	{types.RoleWork, types.TriggerHold, types.RoleBlocked},
	{types.RoleReview, types.TriggerHold, types.RoleBlocked},
}

// Resolve computes the target role for an item and trigger, or an
// INVALID_TRANSITION error when the pair is not in the table.
func Resolve(item *types.WorkItem, trigger types.Trigger) (types.Role, error) {
	if !trigger.IsValid() {
		return "", errs.Validation("invalid trigger: %s", trigger)
	}

	switch trigger {
	case types.TriggerResume:
		if item.Role != types.RoleBlocked {
			return "", invalid(item, trigger)
		}
		prev := item.PreviousRole
		if prev == "" || prev == types.RoleBlocked {
			prev = types.RoleQueue
		}
		return prev, nil
	case types.TriggerCancel:
		if item.Role == types.RoleTerminal {
			return "", invalid(item, trigger)
		}
		return types.RoleTerminal, nil
	}

	for _, r := range table {
		if r.from == item.Role && r.trigger == trigger {
			return r.to, nil
		}
	}
	return "", invalid(item, trigger)
}

func invalid(item *types.WorkItem, trigger types.Trigger) error {
	return errs.New(errs.CodeInvalidTransition,
		"cannot %s item %s in role %s", trigger, item.ID, item.Role).
		WithExtra("role", string(item.Role)).
		WithExtra("trigger", string(trigger))
}

// Triggers enumerates the triggers legal for an item's current role.
func Triggers(item *types.WorkItem) []types.Trigger {
	var out []types.Trigger
	for _, t := range []types.Trigger{
		types.TriggerStart, types.TriggerComplete, types.TriggerBlock,
		types.TriggerHold, types.TriggerResume, types.TriggerCancel,
	} {
		if _, err := Resolve(item, t); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// CascadeOnTerminal suggests a parent-level completion when the last child of
// the parent reaches terminal. siblings counts the parent's direct children by
// role after the transition committed.
func CascadeOnTerminal(parent *types.WorkItem, siblings types.RoleCounts) *types.CascadeEvent {
	if parent == nil || parent.Role == types.RoleTerminal {
		return nil
	}
	if !siblings.AllTerminal() {
		return nil
	}
	return &types.CascadeEvent{
		ParentID: parent.ID,
		FromRole: parent.Role,
		ToRole:   types.RoleTerminal,
		Trigger:  types.TriggerComplete,
		Reason:   fmt.Sprintf("all %d children of %s are terminal", siblings.Total(), parent.ID),
	}
}

// CascadeOnStart suggests starting a queue parent when its first child leaves
// the queue.
func CascadeOnStart(parent *types.WorkItem) *types.CascadeEvent {
	if parent == nil || parent.Role != types.RoleQueue {
		return nil
	}
	return &types.CascadeEvent{
		ParentID: parent.ID,
		FromRole: types.RoleQueue,
		ToRole:   types.RoleWork,
		Trigger:  types.TriggerStart,
		Reason:   fmt.Sprintf("first child of %s started", parent.ID),
	}
}
