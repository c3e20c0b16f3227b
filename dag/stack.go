package dag

import (
	"fmt"
	"strings"
)

// DependencyStack is an immutable path of nodes from a traversal root to the
// current node. Child returns a new stack sharing its parent, so recording a
// stack per visited node costs one allocation.
//
// The zero value is not used directly; obtain the empty stack from Root.
type DependencyStack[T comparable] struct {
	parent *DependencyStack[T]
	elem   T
	depth  int
}

// Root returns the empty stack.
func Root[T comparable]() *DependencyStack[T] {
	return &DependencyStack[T]{}
}

// Child returns the stack extended by elem.
func (s *DependencyStack[T]) Child(elem T) *DependencyStack[T] {
	return &DependencyStack[T]{parent: s, elem: elem, depth: s.depth + 1}
}

// Parent returns the stack without its top element. The root is its own parent.
func (s *DependencyStack[T]) Parent() *DependencyStack[T] {
	if s.parent == nil {
		return s
	}
	return s.parent
}

// Top returns the most recently pushed element.
func (s *DependencyStack[T]) Top() (T, bool) {
	if s.depth == 0 {
		var zero T
		return zero, false
	}
	return s.elem, true
}

// Len returns the number of elements on the stack.
func (s *DependencyStack[T]) Len() int { return s.depth }

// IsRoot reports whether the stack is empty.
func (s *DependencyStack[T]) IsRoot() bool { return s.depth == 0 }

// Contains reports whether elem appears anywhere on the stack.
func (s *DependencyStack[T]) Contains(elem T) bool {
	for cur := s; cur.depth > 0; cur = cur.parent {
		if cur.elem == elem {
			return true
		}
	}
	return false
}

// Elements returns the path root first.
func (s *DependencyStack[T]) Elements() []T {
	out := make([]T, s.depth)
	for cur := s; cur.depth > 0; cur = cur.parent {
		out[cur.depth-1] = cur.elem
	}
	return out
}

// String renders the path as "a -> b -> c".
func (s *DependencyStack[T]) String() string {
	elems := s.Elements()
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = fmt.Sprint(e)
	}
	return strings.Join(parts, " -> ")
}
