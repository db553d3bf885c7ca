// Package validation provides composable precondition checks over work items.
// Services build a chain per operation and run it before touching storage.
package validation

import (
	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

// Check is one precondition over a loaded item.
type Check func(item *types.WorkItem) error

// Run applies checks in order, stopping at the first failure.
func Run(item *types.WorkItem, checks ...Check) error {
	for _, c := range checks {
		if err := c(item); err != nil {
			return err
		}
	}
	return nil
}

// NotTerminal rejects items already in the terminal role.
func NotTerminal() Check {
	return func(item *types.WorkItem) error {
		if item.Role == types.RoleTerminal {
			return errs.Validation("item %s is terminal and cannot be modified", item.ID)
		}
		return nil
	}
}

// DepthBelow requires the item's depth to be strictly below the limit, so it
// can still take children.
func DepthBelow(limit int) Check {
	return func(item *types.WorkItem) error {
		if item.Depth >= limit {
			return errs.Validation("item %s at depth %d cannot take children (limit %d)",
				item.ID, item.Depth, limit)
		}
		return nil
	}
}

// ValidTrigger rejects unknown transition verbs before the state machine runs.
func ValidTrigger(trigger types.Trigger) error {
	if !trigger.IsValid() {
		return errs.Validation("invalid trigger: %s", trigger)
	}
	return nil
}
