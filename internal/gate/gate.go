// Package gate decides whether a role transition is admissible given the
// item's tag schema and its current notes.
//
// A note entry's role names the phase in which the note gets filled. A gate
// is a required entry of the item's current role whose body is still blank
// when the item tries to advance past that role: starting is free, but work
// cannot complete until its work-phase notes are filled. Moving to blocked is
// never gated. Closed gates block the transition with GATE_NOT_SATISFIED
// listing the keys to fill.
package gate

import (
	"strings"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/types"
)

// Status of a gate evaluation.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ExpectedNote pairs a schema entry with its fill state on the item.
type ExpectedNote struct {
	Key      string     `json:"key"`
	Role     types.Role `json:"role"`
	Required bool       `json:"required"`
	Filled   bool       `json:"filled"`
}

// Evaluation is the result of checking an item against its tag schema.
type Evaluation struct {
	ExpectedNotes        []ExpectedNote `json:"expected_notes"`
	MissingRequiredNotes []string       `json:"missing_required_notes,omitempty"`
	GateStatus           Status         `json:"gate_status"`
}

// Evaluator computes gate evaluations against the frozen schema registry.
type Evaluator struct {
	registry *schema.Registry
}

// NewEvaluator creates an evaluator over the given registry.
func NewEvaluator(registry *schema.Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Evaluate checks the item's notes against the schema for a proposed move to
// target. Required entries of the item's current role with blank bodies close
// the gate when the target lies past that role on the flow.
func (e *Evaluator) Evaluate(item *types.WorkItem, notes []*types.Note, target types.Role) *Evaluation {
	entries := e.registry.ForTags(item.TagList())

	bodies := make(map[string]string, len(notes))
	for _, n := range notes {
		bodies[n.Key] = n.Body
	}

	gating := target.Rank() > item.Role.Rank()
	ev := &Evaluation{GateStatus: StatusOpen}
	for _, entry := range entries {
		filled := strings.TrimSpace(bodies[entry.Key]) != ""
		ev.ExpectedNotes = append(ev.ExpectedNotes, ExpectedNote{
			Key:      entry.Key,
			Role:     entry.Role,
			Required: entry.Required,
			Filled:   filled,
		})
		if gating && entry.Required && entry.Role == item.Role && !filled {
			ev.MissingRequiredNotes = append(ev.MissingRequiredNotes, entry.Key)
		}
	}
	if len(ev.MissingRequiredNotes) > 0 {
		ev.GateStatus = StatusClosed
	}
	return ev
}

// Check returns a GATE_NOT_SATISFIED error when the move to target is gated
// by unfilled required notes of the current role.
func (e *Evaluator) Check(item *types.WorkItem, notes []*types.Note, target types.Role) error {
	ev := e.Evaluate(item, notes, target)
	if ev.GateStatus == StatusOpen {
		return nil
	}
	return errs.New(errs.CodeGateNotSatisfied,
		"required notes must be filled before %s can leave %s: %s",
		item.ID, item.Role, strings.Join(ev.MissingRequiredNotes, ", ")).
		WithExtra("missingNotes", ev.MissingRequiredNotes)
}
