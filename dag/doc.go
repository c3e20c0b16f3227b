// Package dag provides the acyclic depth-first post-order traversal used by
// the build graph and by domain algorithms that walk it.
//
// A Traversal is driven by an Expander that maps a node, together with the
// path that reached it, to a payload and an ordered list of children. The
// traversal is iterative, visits every reachable node exactly once, and emits
// nodes only after all of their explored children. A dependency loop aborts
// the walk with a *CycleError carrying the full cycle path.
//
//	t := dag.NewTraversal(func(n string, _ *dag.DependencyStack[string]) (int, []string, error) {
//	    return len(n), edges[n], nil
//	})
//	res, err := t.Traverse([]string{"root"})
package dag
