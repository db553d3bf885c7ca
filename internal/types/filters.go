package types

import "time"

// SortField names a column search results may be ordered by.
type SortField string

const (
	SortByTitle      SortField = "title"
	SortByPriority   SortField = "priority"
	SortByComplexity SortField = "complexity"
	SortByCreatedAt  SortField = "createdAt"
	SortByModifiedAt SortField = "modifiedAt"
)

// IsValid checks if the sort field is in the whitelist.
func (s SortField) IsValid() bool {
	switch s {
	case SortByTitle, SortByPriority, SortByComplexity, SortByCreatedAt, SortByModifiedAt:
		return true
	}
	return false
}

// TimeWindow bounds a timestamp column. Zero values mean unbounded.
type TimeWindow struct {
	After  time.Time
	Before time.Time
}

// IsZero reports whether the window is unbounded on both sides.
func (tw TimeWindow) IsZero() bool {
	return tw.After.IsZero() && tw.Before.IsZero()
}

// ItemFilter selects work items for search and count operations.
// Zero-valued fields are ignored.
type ItemFilter struct {
	ParentID    *string    // nil = any; pointer to "" = roots only
	Depth       *int
	Role        Role
	Priority    Priority
	StatusLabel string
	Tags        []string // any-of semantics over the comma-separated bag
	Query       string   // substring match on title + summary

	Created     TimeWindow
	Modified    TimeWindow
	RoleChanged TimeWindow

	SortBy   SortField
	SortDesc bool
	Limit    int
	Offset   int
}

// SearchResult carries one page of matches plus the unpaginated total.
type SearchResult struct {
	Items    []*WorkItem `json:"items"`
	Total    int         `json:"total"`
	Returned int         `json:"returned"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
}

// ItemUpdate describes a partial update to a work item. Nil fields are left
// untouched. Version is the caller's last-seen version for optimistic
// concurrency; updates fail with a conflict when it no longer matches.
type ItemUpdate struct {
	Title                *string
	Summary              *string
	Description          *string
	StatusLabel          *string
	Priority             *Priority
	Complexity           *int
	RequiresVerification *bool
	Metadata             *string
	Tags                 *string
	Version              *int
}

// Empty reports whether the update changes nothing.
func (u *ItemUpdate) Empty() bool {
	return u.Title == nil && u.Summary == nil && u.Description == nil &&
		u.StatusLabel == nil && u.Priority == nil && u.Complexity == nil &&
		u.RequiresVerification == nil && u.Metadata == nil && u.Tags == nil
}

// NoteFilter selects notes attached to an item.
type NoteFilter struct {
	ItemID       string
	Role         Role
	Key          string
	MetadataOnly bool // omit bodies from the result
}
