// Package schema loads the note-schema catalog that gates role transitions.
//
// The catalog maps tags to ordered lists of note entries. When an item
// carries a tag, the listed notes are expected on it; entries marked required
// gate the transition into their role. The catalog is loaded from YAML once
// per process and frozen afterwards.
//
// # File format
//
//	tags:
//	  bugfix:
//	    - key: root-cause
//	      role: work
//	      required: true
//	    - key: fix-verification
//	      role: review
//	      required: false
//	preserve_tags: [bugfix, hotfix, critical]
//	default_flow: [queue, work, review, terminal]
//
// default_flow is a single catalog-wide progression shared by every tag;
// per-tag flows are not supported.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/loom/internal/types"
)

// Entry describes one expected note for a tag.
type Entry struct {
	Key      string     `yaml:"key" json:"key"`
	Role     types.Role `yaml:"role" json:"role"`
	Required bool       `yaml:"required" json:"required"`
}

// Registry is the frozen note-schema catalog.
type Registry struct {
	tags         map[string][]Entry
	preserveTags map[string]bool
	defaultFlow  []types.Role
}

type fileFormat struct {
	Tags         map[string][]Entry `yaml:"tags"`
	PreserveTags []string           `yaml:"preserve_tags"`
	DefaultFlow  []types.Role       `yaml:"default_flow"`
}

// DefaultPreserveTags retained on cleanup when no configuration overrides them.
var DefaultPreserveTags = []string{"bugfix", "hotfix", "critical"}

// DefaultFlow is the canonical role progression.
var DefaultFlow = []types.Role{types.RoleQueue, types.RoleWork, types.RoleReview, types.RoleTerminal}

// Load reads and validates the catalog from a YAML file. A missing file
// yields an empty registry with defaults: ungated transitions, default
// preserve tags and flow.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil, nil, nil)
		}
		return nil, fmt.Errorf("failed to read note schema %s: %w", path, err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse note schema %s: %w", path, err)
	}
	return New(ff.Tags, ff.PreserveTags, ff.DefaultFlow)
}

// New builds a registry from already-parsed parts, applying defaults and
// validating every entry.
func New(tags map[string][]Entry, preserveTags []string, flow []types.Role) (*Registry, error) {
	r := &Registry{
		tags:         make(map[string][]Entry, len(tags)),
		preserveTags: make(map[string]bool),
	}
	for tag, entries := range tags {
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			if e.Key == "" {
				return nil, fmt.Errorf("tag %q: note entry with empty key", tag)
			}
			if !e.Role.IsValid() || e.Role == types.RoleBlocked {
				return nil, fmt.Errorf("tag %q note %q: invalid role %q", tag, e.Key, e.Role)
			}
			if seen[e.Key] {
				return nil, fmt.Errorf("tag %q: duplicate note key %q", tag, e.Key)
			}
			seen[e.Key] = true
		}
		r.tags[tag] = append([]Entry(nil), entries...)
	}

	if preserveTags == nil {
		preserveTags = DefaultPreserveTags
	}
	for _, t := range preserveTags {
		r.preserveTags[t] = true
	}

	if len(flow) == 0 {
		flow = DefaultFlow
	}
	for _, role := range flow {
		if !role.IsValid() {
			return nil, fmt.Errorf("default_flow: invalid role %q", role)
		}
	}
	r.defaultFlow = append([]types.Role(nil), flow...)
	return r, nil
}

// ForTag returns the entries configured for a single tag.
func (r *Registry) ForTag(tag string) []Entry {
	return r.tags[tag]
}

// ForTags merges the entries for an item's tag bag, in tag order. On key
// collisions the first tag wins.
func (r *Registry) ForTags(tags []string) []Entry {
	var merged []Entry
	seen := make(map[string]bool)
	for _, tag := range tags {
		for _, e := range r.tags[tag] {
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			merged = append(merged, e)
		}
	}
	return merged
}

// Preserve reports whether any of the given tags is in the preserve-on-cleanup set.
func (r *Registry) Preserve(tags []string) bool {
	for _, t := range tags {
		if r.preserveTags[t] {
			return true
		}
	}
	return false
}

// FlowPosition returns the index of a role within the default flow, or -1
// for roles off the flow (blocked).
func (r *Registry) FlowPosition(role types.Role) int {
	for i, fr := range r.defaultFlow {
		if fr == role {
			return i
		}
	}
	return -1
}

// Flow returns the configured default flow.
func (r *Registry) Flow() []types.Role {
	return append([]types.Role(nil), r.defaultFlow...)
}
