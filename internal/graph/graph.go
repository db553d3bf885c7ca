// Package graph implements the pure algorithms over typed dependency edges:
// cycle detection, topological ordering and bounded traversal.
//
// Blocking edges collapse into a single "blocks" direction: BLOCKS(a,b) reads
// a -> b, IS_BLOCKED_BY(a,b) reads b -> a. RELATES_TO edges are excluded from
// cycle checks and ordering.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/types"
)

// blocksEdges collapses typed edges into blocker -> blocked adjacency.
func blocksEdges(deps []*types.Dependency) map[string][]string {
	adj := make(map[string][]string)
	for _, d := range deps {
		blocker := d.BlockerID()
		blocked := d.BlockedID()
		if blocker == "" || blocked == "" {
			continue // RELATES_TO
		}
		adj[blocker] = append(adj[blocker], blocked)
	}
	return adj
}

// CheckAcyclic verifies that inserting candidates on top of existing edges
// keeps the collapsed blocks relation acyclic. The candidate batch is folded
// in as a whole, so cycles formed only by the batch are detected. Returns a
// VALIDATION_ERROR naming the cycle members.
func CheckAcyclic(existing, candidates []*types.Dependency) error {
	all := make([]*types.Dependency, 0, len(existing)+len(candidates))
	all = append(all, existing...)
	all = append(all, candidates...)
	adj := blocksEdges(all)

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(adj))
	var stack []string

	var visit func(node string) []string
	visit = func(node string) []string {
		state[node] = inStack
		stack = append(stack, node)
		for _, next := range adj[node] {
			switch state[next] {
			case inStack:
				// Unwind the stack back to the repeated node.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						return append([]string(nil), stack[i:]...)
					}
				}
				return []string{next}
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return nil
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes) // deterministic error messages

	for _, n := range nodes {
		if state[n] == unvisited {
			if cycle := visit(n); cycle != nil {
				sort.Strings(cycle)
				return errs.Validation("dependency cycle detected").
					WithDetails("cycle involving %s", strings.Join(cycle, ",")).
					WithExtra("cycle", cycle)
			}
		}
	}
	return nil
}

// TopoOrder returns the given item IDs ordered so that every blocker precedes
// the items it blocks, and children precede their parents. This is the
// completion order for complete_tree: leaves close first, the root last.
// Edges touching IDs outside the set are ignored. An error is only possible
// when the edges carry a cycle, which insertion already prevents.
func TopoOrder(ids []string, parents map[string]string, deps []*types.Dependency) ([]string, error) {
	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	// adjacency: predecessor -> successors, where predecessor must close first
	adj := make(map[string][]string, len(ids))
	indeg := make(map[string]int, len(ids))
	for _, id := range ids {
		indeg[id] = 0
	}
	addEdge := func(first, then string) {
		if !inSet[first] || !inSet[then] || first == then {
			return
		}
		adj[first] = append(adj[first], then)
		indeg[then]++
	}

	for _, d := range deps {
		blocker, blocked := d.BlockerID(), d.BlockedID()
		if blocker != "" {
			addEdge(blocker, blocked)
		}
	}
	// Children close before their parents.
	for child, parent := range parents {
		addEdge(child, parent)
	}

	// Kahn's algorithm with a sorted frontier for stable output.
	frontier := make([]string, 0, len(ids))
	for _, id := range ids {
		if indeg[id] == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(ids))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			indeg[next]--
			if indeg[next] == 0 {
				frontier = append(frontier, next)
				sort.Strings(frontier)
			}
		}
	}
	if len(order) != len(ids) {
		return nil, fmt.Errorf("dependency graph contains a cycle among %d items", len(ids)-len(order))
	}
	return order, nil
}

// TraversalNode is one hop of a breadth-first dependency walk.
type TraversalNode struct {
	ItemID string              `json:"item_id"`
	Depth  int                 `json:"depth"`
	Edges  []*types.Dependency `json:"edges,omitempty"`
}

// Traverse walks the dependency graph breadth-first from seed, following
// edges in both directions, up to maxDepth hops. RELATES_TO edges are
// followed like any other edge; traversal is about connectivity, not blocking.
func Traverse(seed string, deps []*types.Dependency, maxDepth int) []TraversalNode {
	if maxDepth <= 0 {
		maxDepth = 3
	}

	neighbors := make(map[string][]*types.Dependency)
	for _, d := range deps {
		neighbors[d.FromItemID] = append(neighbors[d.FromItemID], d)
		neighbors[d.ToItemID] = append(neighbors[d.ToItemID], d)
	}

	visited := map[string]bool{seed: true}
	queue := []TraversalNode{{ItemID: seed, Depth: 0}}
	var out []TraversalNode

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		node.Edges = neighbors[node.ItemID]
		out = append(out, node)
		if node.Depth >= maxDepth {
			continue
		}
		next := make([]string, 0, len(node.Edges))
		for _, e := range node.Edges {
			other := e.ToItemID
			if other == node.ItemID {
				other = e.FromItemID
			}
			if !visited[other] {
				visited[other] = true
				next = append(next, other)
			}
		}
		sort.Strings(next)
		for _, id := range next {
			queue = append(queue, TraversalNode{ItemID: id, Depth: node.Depth + 1})
		}
	}
	return out
}
