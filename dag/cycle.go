package dag

import (
	"fmt"
	"strings"

	apperrors "github.com/kbukum/buildgraph/errors"
)

// CycleError reports a dependency loop. Path lists the members of the loop
// in discovery order; the last element depends on the first.
type CycleError[T comparable] struct {
	Path []T
}

func (e *CycleError[T]) Error() string {
	parts := make([]string, 0, len(e.Path)+1)
	for _, n := range e.Path {
		parts = append(parts, fmt.Sprint(n))
	}
	if len(e.Path) > 0 {
		parts = append(parts, fmt.Sprint(e.Path[0]))
	}
	return "cycle detected: " + strings.Join(parts, " -> ")
}

// ErrorCode implements errors.Coder.
func (e *CycleError[T]) ErrorCode() apperrors.ErrorCode { return apperrors.ErrCodeCycle }

// Contains reports whether node is a member of the cycle.
func (e *CycleError[T]) Contains(node T) bool {
	for _, n := range e.Path {
		if n == node {
			return true
		}
	}
	return false
}
