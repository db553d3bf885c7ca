// Package types defines core data structures for the loom work-item engine.
package types

import (
	"fmt"
	"strings"
	"time"
)

// MaxDepth is the deepest tier a work item may occupy (root=0, child=1, grandchild=2).
const MaxDepth = 2

// Role is the coarse semantic phase of a work item. It drives gating and
// cascade logic; the free-form StatusLabel refines within a role but never
// affects transition legality.
type Role string

const (
	RoleQueue    Role = "queue"
	RoleWork     Role = "work"
	RoleReview   Role = "review"
	RoleBlocked  Role = "blocked"
	RoleTerminal Role = "terminal"
)

// IsValid checks if the role is one of the five valid values.
func (r Role) IsValid() bool {
	switch r {
	case RoleQueue, RoleWork, RoleReview, RoleBlocked, RoleTerminal:
		return true
	}
	return false
}

// Rank orders roles along the unblock-threshold path:
// queue(0) < work(1) < review(2) < terminal(3). Blocked is off the path and
// ranks below everything, so a blocked blocker never satisfies a threshold.
func (r Role) Rank() int {
	switch r {
	case RoleQueue:
		return 0
	case RoleWork:
		return 1
	case RoleReview:
		return 2
	case RoleTerminal:
		return 3
	default:
		return -1
	}
}

// Satisfies reports whether a blocker in role r meets the given unblock
// threshold. An empty threshold defaults to terminal.
func (r Role) Satisfies(threshold Role) bool {
	if threshold == "" {
		threshold = RoleTerminal
	}
	return r.Rank() >= 0 && r.Rank() >= threshold.Rank()
}

// Trigger is the verb an agent uses to request a role transition.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerComplete Trigger = "complete"
	TriggerBlock    Trigger = "block"
	TriggerHold     Trigger = "hold"
	TriggerResume   Trigger = "resume"
	TriggerCancel   Trigger = "cancel"
)

// IsValid checks if the trigger is a known verb.
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerStart, TriggerComplete, TriggerBlock, TriggerHold, TriggerResume, TriggerCancel:
		return true
	}
	return false
}

// Priority of a work item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid checks if the priority is a known value.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities for the next-item recommender (high first).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// DependencyType classifies a typed directed edge between two items.
type DependencyType string

const (
	// DepBlocks: the from-item blocks the to-item.
	DepBlocks DependencyType = "BLOCKS"
	// DepIsBlockedBy: the from-item is blocked by the to-item.
	DepIsBlockedBy DependencyType = "IS_BLOCKED_BY"
	// DepRelatesTo: informational link, excluded from cycle and blocking logic.
	DepRelatesTo DependencyType = "RELATES_TO"
)

// IsValid checks if the dependency type is a known value.
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepIsBlockedBy, DepRelatesTo:
		return true
	}
	return false
}

// WorkItem represents a single unit of work at any tier of the <=3-level tree.
type WorkItem struct {
	ID                   string     `json:"id"`
	ParentID             *string    `json:"parent_id,omitempty"`
	Depth                int        `json:"depth"`
	Title                string     `json:"title"`
	Summary              string     `json:"summary,omitempty"`
	Description          string     `json:"description,omitempty"`
	Role                 Role       `json:"role"`
	StatusLabel          string     `json:"status_label,omitempty"`
	PreviousRole         Role       `json:"previous_role,omitempty"`
	Priority             Priority   `json:"priority"`
	Complexity           int        `json:"complexity"`
	RequiresVerification bool       `json:"requires_verification,omitempty"`
	Metadata             string     `json:"metadata,omitempty"`
	Tags                 string     `json:"tags,omitempty"` // comma-separated bag
	CreatedAt            time.Time  `json:"created_at"`
	ModifiedAt           time.Time  `json:"modified_at"`
	RoleChangedAt        time.Time  `json:"role_changed_at"`
	Version              int        `json:"version"`
}

// TagList splits the comma-separated tag bag into trimmed, non-empty tags.
func (w *WorkItem) TagList() []string {
	if w.Tags == "" {
		return nil
	}
	parts := strings.Split(w.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// HasTag reports whether the item carries the given tag.
func (w *WorkItem) HasTag(tag string) bool {
	for _, t := range w.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

// EffectiveStatusLabel returns the status label, defaulting to the role name.
func (w *WorkItem) EffectiveStatusLabel() string {
	if w.StatusLabel != "" {
		return w.StatusLabel
	}
	return string(w.Role)
}

// Validate checks the item's field invariants.
func (w *WorkItem) Validate() error {
	if strings.TrimSpace(w.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(w.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(w.Title))
	}
	if w.Depth < 0 || w.Depth > MaxDepth {
		return fmt.Errorf("depth must be between 0 and %d (got %d)", MaxDepth, w.Depth)
	}
	if w.Depth > 0 && (w.ParentID == nil || *w.ParentID == "") {
		return fmt.Errorf("items below the root tier must have a parent")
	}
	if w.Depth == 0 && w.ParentID != nil && *w.ParentID != "" {
		return fmt.Errorf("root items cannot have a parent")
	}
	if !w.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", w.Role)
	}
	if w.PreviousRole != "" && !w.PreviousRole.IsValid() {
		return fmt.Errorf("invalid previous role: %s", w.PreviousRole)
	}
	if !w.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", w.Priority)
	}
	if w.Complexity < 1 || w.Complexity > 10 {
		return fmt.Errorf("complexity must be between 1 and 10 (got %d)", w.Complexity)
	}
	return nil
}

// Dependency is a typed directed edge between two items.
//
// For BLOCKS edges the from-item is the blocker and the to-item the blocked
// side; IS_BLOCKED_BY reverses that reading. UnblockAt names the role the
// blocker must reach before the blocked side is released; empty means
// terminal. RELATES_TO edges carry no threshold.
type Dependency struct {
	ID         int64          `json:"id,omitempty"`
	FromItemID string         `json:"from_item_id"`
	ToItemID   string         `json:"to_item_id"`
	Type       DependencyType `json:"type"`
	UnblockAt  Role           `json:"unblock_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
}

// BlockerID returns the ID of the blocking side of the edge, or "" for
// non-blocking edge types.
func (d *Dependency) BlockerID() string {
	switch d.Type {
	case DepBlocks:
		return d.FromItemID
	case DepIsBlockedBy:
		return d.ToItemID
	}
	return ""
}

// BlockedID returns the ID of the blocked side of the edge, or "" for
// non-blocking edge types.
func (d *Dependency) BlockedID() string {
	switch d.Type {
	case DepBlocks:
		return d.ToItemID
	case DepIsBlockedBy:
		return d.FromItemID
	}
	return ""
}

// Validate checks the edge's field invariants.
func (d *Dependency) Validate() error {
	if d.FromItemID == "" || d.ToItemID == "" {
		return fmt.Errorf("both endpoints are required")
	}
	if d.FromItemID == d.ToItemID {
		return fmt.Errorf("dependency cannot reference itself")
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", d.Type)
	}
	if d.Type == DepRelatesTo && d.UnblockAt != "" {
		return fmt.Errorf("unblock_at is not meaningful for RELATES_TO edges")
	}
	if d.UnblockAt != "" {
		if !d.UnblockAt.IsValid() || d.UnblockAt == RoleBlocked {
			return fmt.Errorf("invalid unblock threshold: %s", d.UnblockAt)
		}
	}
	return nil
}

// Note is a structured text attachment on a work item, keyed by a
// schema-defined name. (item_id, key) is unique; upserts match on the pair.
type Note struct {
	ID         int64     `json:"id,omitempty"`
	ItemID     string    `json:"item_id"`
	Key        string    `json:"key"`
	Role       Role      `json:"role"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Filled reports whether the note has a non-blank body.
func (n *Note) Filled() bool {
	return strings.TrimSpace(n.Body) != ""
}

// Validate checks the note's field invariants.
func (n *Note) Validate() error {
	if n.ItemID == "" {
		return fmt.Errorf("item_id is required")
	}
	if strings.TrimSpace(n.Key) == "" {
		return fmt.Errorf("key is required")
	}
	if n.Role != "" && (!n.Role.IsValid() || n.Role == RoleBlocked) {
		return fmt.Errorf("invalid note role: %s", n.Role)
	}
	return nil
}

// EntityType classifies what kind of entity an audit row refers to.
// Historically items were called task/feature/project depending on depth;
// rows written by this engine always use EntityItem.
type EntityType string

const (
	EntityTask    EntityType = "task"
	EntityFeature EntityType = "feature"
	EntityProject EntityType = "project"
	EntityItem    EntityType = "item"
)

// RoleTransition is an immutable audit row recording one role change.
type RoleTransition struct {
	ID             int64      `json:"id,omitempty"`
	EntityID       string     `json:"entity_id"`
	EntityType     EntityType `json:"entity_type"`
	FromRole       Role       `json:"from_role"`
	ToRole         Role       `json:"to_role"`
	FromStatus     string     `json:"from_status,omitempty"`
	ToStatus       string     `json:"to_status,omitempty"`
	Trigger        Trigger    `json:"trigger"`
	Summary        string     `json:"summary,omitempty"`
	TransitionedAt time.Time  `json:"transitioned_at"`
}

// CascadeEvent is a parent-level transition suggested by a child-level
// transition. It is informational: the engine never applies it automatically.
type CascadeEvent struct {
	ParentID string  `json:"parent_id"`
	FromRole Role    `json:"from_role"`
	ToRole   Role    `json:"to_role"`
	Trigger  Trigger `json:"trigger"`
	Reason   string  `json:"reason"`
}

// RoleCounts maps roles to item counts, used for overviews and cascade checks.
type RoleCounts map[Role]int

// Total sums all counts.
func (rc RoleCounts) Total() int {
	n := 0
	for _, c := range rc {
		n += c
	}
	return n
}

// AllTerminal reports whether every counted item is terminal.
func (rc RoleCounts) AllTerminal() bool {
	return rc.Total() > 0 && rc.Total() == rc[RoleTerminal]
}

// Statistics summarizes the whole store for overview rollups.
type Statistics struct {
	TotalItems   int              `json:"total_items"`
	ByRole       RoleCounts       `json:"by_role"`
	ByPriority   map[Priority]int `json:"by_priority"`
	RootItems    int              `json:"root_items"`
	BlockedByDep int              `json:"blocked_by_dependency"`
	Dependencies int              `json:"dependencies"`
	Notes        int              `json:"notes"`
}

// BlockerInfo describes one open blocker of a blocked item.
type BlockerInfo struct {
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	Role      Role   `json:"role"`
	UnblockAt Role   `json:"unblock_at"`
}

// BlockedItem pairs a blocked item with the blockers holding it.
type BlockedItem struct {
	Item     *WorkItem     `json:"item"`
	Blockers []BlockerInfo `json:"blockers"`
}
