// Package graph holds the adjacency view of prerequisite edges and the
// reachability checks that keep template and instance graphs acyclic.
//
// A Graph is a plain map keyed by dependent id listing its prerequisite ids.
// Nothing here performs I/O except Load, which reads one instance's edge set
// inside the caller's transaction.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// Graph maps a dependent node id to the ids of its direct prerequisites.
type Graph map[string][]string

// Build constructs the adjacency map from any edge list.
func Build[E types.Edge](edges []E) Graph {
	g := make(Graph, len(edges))
	for _, e := range edges {
		dep, pre := e.Endpoints()
		g[dep] = append(g[dep], pre)
	}
	return g
}

// Load reads every edge of an instance and builds its adjacency map.
// It always re-reads the store; graphs are never cached between calls.
func Load(ctx context.Context, tx storage.Transaction, instanceID string) (Graph, error) {
	edges, err := tx.GetEdges(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load edges of %s: %w", instanceID, err)
	}
	return Build(edges), nil
}

// WouldCreateCycle reports whether inserting the edge dependentID -> prerequisiteID
// closes a loop, which is the case exactly when dependentID is already reachable
// from prerequisiteID. The graph is not modified.
func (g Graph) WouldCreateCycle(dependentID, prerequisiteID string) bool {
	return g.Path(prerequisiteID, dependentID) != nil
}

// Path returns one chain of prerequisite edges leading from `from` to `to`
// (both inclusive), or nil when `to` is unreachable. The walk is an iterative
// depth-first search with an explicit stack.
func (g Graph) Path(from, to string) []string {
	if len(g) == 0 {
		return nil
	}
	parent := map[string]string{from: ""}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			var path []string
			for n := cur; ; n = parent[n] {
				path = append(path, n)
				if n == from {
					break
				}
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		for _, next := range g[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			stack = append(stack, next)
		}
	}
	return nil
}

// Nodes returns every id mentioned by the graph, sorted.
func (g Graph) Nodes() []string {
	set := make(map[string]struct{}, len(g))
	for dep, pres := range g {
		set[dep] = struct{}{}
		for _, p := range pres {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FindCycle returns the ids of one cycle (first id repeated at the end), or
// nil if the graph is a DAG. Used to validate whole template definitions.
func (g Graph) FindCycle() []string {
	const (
		unvisited = iota
		onStack
		finished
	)
	state := make(map[string]int, len(g))
	type frame struct {
		id   string
		next int
	}
	for _, root := range g.Nodes() {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{id: root}}
		state[root] = onStack
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			pres := g[top.id]
			if top.next == len(pres) {
				state[top.id] = finished
				stack = stack[:len(stack)-1]
				continue
			}
			next := pres[top.next]
			top.next++
			switch state[next] {
			case unvisited:
				state[next] = onStack
				stack = append(stack, frame{id: next})
			case onStack:
				var cycle []string
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i].id)
					if stack[i].id == next {
						break
					}
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return append(cycle, next)
			}
		}
	}
	return nil
}

// TopoSort orders ids so that every prerequisite precedes its dependents
// (Kahn's algorithm, ties broken by id). extra lists isolated nodes that have
// no edges. It fails if the graph has a cycle.
func (g Graph) TopoSort(extra ...string) ([]string, error) {
	ids := g.Nodes()
	indeg := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		indeg[id] = 0
	}
	for _, id := range extra {
		if _, ok := indeg[id]; !ok {
			indeg[id] = 0
			ids = append(ids, id)
		}
	}
	for dep, pres := range g {
		for _, p := range pres {
			indeg[dep]++
			dependents[p] = append(dependents[p], dep)
		}
	}
	sort.Strings(ids)

	var ready []string
	for _, id := range ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	out := make([]string, 0, len(ids))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		next := dependents[id]
		sort.Strings(next)
		for _, d := range next {
			indeg[d]--
			if indeg[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(out) != len(ids) {
		return nil, fmt.Errorf("graph has a cycle: %v", g.FindCycle())
	}
	return out, nil
}
