package dag

// Expander maps a node to its payload and its children, in the order they
// should be visited. stack is the path that reached node, node included.
type Expander[T comparable, P any] func(node T, stack *DependencyStack[T]) (P, []T, error)

// Entry is what a traversal recorded for one node.
type Entry[T comparable, P any] struct {
	Payload P
	// Stack is the path at first discovery.
	Stack *DependencyStack[T]
}

// Result is the outcome of a successful traversal. It is immutable.
type Result[T comparable, P any] struct {
	order   []T
	entries map[T]Entry[T, P]
}

// Order returns the visited nodes in post-order: every node appears after
// all of its explored children.
func (r *Result[T, P]) Order() []T {
	out := make([]T, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the entry recorded for node.
func (r *Result[T, P]) Get(node T) (Entry[T, P], bool) {
	e, ok := r.entries[node]
	return e, ok
}

// Payloads returns the payloads in post-order.
func (r *Result[T, P]) Payloads() []P {
	out := make([]P, len(r.order))
	for i, n := range r.order {
		out[i] = r.entries[n].Payload
	}
	return out
}

// Len returns the number of visited nodes.
func (r *Result[T, P]) Len() int { return len(r.order) }

// Traversal performs acyclic depth-first post-order walks. A Traversal holds
// no per-walk state and may be used from several goroutines at once, provided
// the Expander is safe for that.
type Traversal[T comparable, P any] struct {
	expand Expander[T, P]
}

// NewTraversal creates a traversal driven by expand.
func NewTraversal[T comparable, P any](expand Expander[T, P]) *Traversal[T, P] {
	return &Traversal[T, P]{expand: expand}
}

// Traverse walks every node reachable from initial.
func (t *Traversal[T, P]) Traverse(initial []T) (*Result[T, P], error) {
	return t.TraverseWhere(initial, nil)
}

type frame[T comparable] struct {
	node     T
	stack    *DependencyStack[T]
	children []T
	next     int
}

// TraverseWhere walks the graph from initial, skipping the children of any
// node for which shouldExploreChildren returns false. Such a node is still
// expanded and emitted. A nil predicate explores everything.
//
// The walk fails with *CycleError if a child is already on the current path,
// and with the Expander's error unchanged if expansion fails. No partial
// result is returned on failure.
func (t *Traversal[T, P]) TraverseWhere(initial []T, shouldExploreChildren func(T) bool) (*Result[T, P], error) {
	res := &Result[T, P]{entries: make(map[T]Entry[T, P])}
	onStack := make(map[T]int)
	var frames []frame[T]

	push := func(node T, stack *DependencyStack[T]) error {
		payload, children, err := t.expand(node, stack)
		if err != nil {
			return err
		}
		res.entries[node] = Entry[T, P]{Payload: payload, Stack: stack}
		if shouldExploreChildren != nil && !shouldExploreChildren(node) {
			children = nil
		}
		onStack[node] = len(frames)
		frames = append(frames, frame[T]{node: node, stack: stack, children: children})
		return nil
	}

	root := Root[T]()
	for _, start := range initial {
		if _, seen := res.entries[start]; seen {
			continue
		}
		if err := push(start, root.Child(start)); err != nil {
			return nil, err
		}

		for len(frames) > 0 {
			top := &frames[len(frames)-1]
			if top.next < len(top.children) {
				child := top.children[top.next]
				top.next++

				if idx, ok := onStack[child]; ok {
					path := make([]T, 0, len(frames)-idx)
					for _, f := range frames[idx:] {
						path = append(path, f.node)
					}
					return nil, &CycleError[T]{Path: path}
				}
				if _, seen := res.entries[child]; seen {
					continue
				}
				if err := push(child, top.stack.Child(child)); err != nil {
					return nil, err
				}
				continue
			}

			res.order = append(res.order, top.node)
			delete(onStack, top.node)
			frames = frames[:len(frames)-1]
		}
	}
	return res, nil
}
