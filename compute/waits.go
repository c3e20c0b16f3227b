package compute

import (
	"sync"

	"github.com/kbukum/buildgraph/dag"
)

// waitGraph records which keys are blocked on which dependencies. An edge
// exists only while the waiter is awaiting the dependency, so a loop in the
// graph is a dependency cycle that can never make progress.
type waitGraph struct {
	mu    sync.Mutex
	edges map[Key]map[Key]struct{}
}

func newWaitGraph() *waitGraph {
	return &waitGraph{edges: make(map[Key]map[Key]struct{})}
}

// add records waiter -> dep. If dep already (transitively) waits on waiter,
// no edge is added and the cycle is returned, starting at dep.
func (g *waitGraph) add(waiter, dep Key) *dag.CycleError[Key] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if path := g.pathLocked(dep, waiter); path != nil {
		return &dag.CycleError[Key]{Path: path}
	}
	out, ok := g.edges[waiter]
	if !ok {
		out = make(map[Key]struct{})
		g.edges[waiter] = out
	}
	out[dep] = struct{}{}
	return nil
}

// release drops every edge leaving waiter.
func (g *waitGraph) release(waiter Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, waiter)
}

// pathLocked returns the keys on a path from -> ... -> to, or nil.
func (g *waitGraph) pathLocked(from, to Key) []Key {
	if from == to {
		return []Key{from}
	}
	parent := map[Key]Key{from: nil}
	stack := []Key{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.edges[n] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = n
			if next == to {
				var path []Key
				for k := next; k != nil; k = parent[k] {
					path = append(path, k)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			stack = append(stack, next)
		}
	}
	return nil
}
