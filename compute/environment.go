package compute

import (
	"fmt"
	"sync"

	apperrors "github.com/kbukum/buildgraph/errors"
)

// Environment exposes the finalized results of a computation's declared
// dependencies.
type Environment interface {
	// Value returns the result of dep. ok is false when dep was never
	// declared.
	Value(dep Key) (value any, ok bool)
	// Keys returns the declared dependencies in declaration order.
	Keys() []Key
}

// Get returns the result of dep as R. Asking for a key that was never
// declared is a programming error and panics with an UNDECLARED_DEPENDENCY
// AppError; the engine records it as the failure of the calling key.
func Get[R any](env Environment, dep Key) R {
	v, ok := env.Value(dep)
	if !ok {
		panic(apperrors.UndeclaredDependency(string(kindOf(env)), dep))
	}
	r, ok := v.(R)
	if !ok {
		var zero R
		panic(apperrors.Internal(fmt.Errorf("dependency %v: expected %T, got %T", dep, zero, v)))
	}
	return r
}

// Lookup is like Get but reports absence or a type mismatch instead of
// panicking.
func Lookup[R any](env Environment, dep Key) (R, bool) {
	v, ok := env.Value(dep)
	if !ok {
		var zero R
		return zero, false
	}
	r, ok := v.(R)
	return r, ok
}

// MapEnvironment is an Environment over a fixed set of results, for calling
// computations directly in tests.
type MapEnvironment map[Key]any

// Value returns the result stored for dep.
func (m MapEnvironment) Value(dep Key) (any, bool) {
	v, ok := m[dep]
	return v, ok
}

// Keys returns the stored keys in no particular order.
func (m MapEnvironment) Keys() []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

type environment struct {
	kind Kind

	mu     sync.RWMutex
	order  []Key
	values map[Key]any
}

func newEnvironment(kind Kind) *environment {
	return &environment{kind: kind, values: make(map[Key]any)}
}

func (e *environment) Value(dep Key) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[dep]
	return v, ok
}

func (e *environment) Keys() []Key {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Key, len(e.order))
	copy(out, e.order)
	return out
}

func (e *environment) has(dep Key) bool {
	_, ok := e.Value(dep)
	return ok
}

func (e *environment) put(dep Key, v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.values[dep]; !ok {
		e.order = append(e.order, dep)
	}
	e.values[dep] = v
}

func kindOf(env Environment) Kind {
	if e, ok := env.(*environment); ok {
		return e.kind
	}
	return "unknown"
}
