package compute

import (
	"context"
	"fmt"

	apperrors "github.com/kbukum/buildgraph/errors"
)

// Kind identifies a family of keys evaluated by the same Computation.
type Kind string

// Key names one unit of work. Implementations must be comparable; two keys
// with equal dynamic values share one result.
type Key interface {
	Kind() Kind
}

// Computation evaluates every key of one Kind.
type Computation interface {
	Kind() Kind
	// DiscoverPreliminaryDeps returns dependencies known from the key alone.
	DiscoverPreliminaryDeps(key Key) ([]Key, error)
	// DiscoverDeps returns further dependencies once the ones declared so far
	// are available in env. It is called repeatedly until it returns no key
	// that is not already declared.
	DiscoverDeps(key Key, env Environment) ([]Key, error)
	// Transform computes the result. env holds every declared dependency.
	Transform(ctx context.Context, key Key, env Environment) (any, error)
}

// TypedComputation is the statically typed form of Computation. Wrap it with
// Adapt to register it with an Engine.
type TypedComputation[K Key, R any] interface {
	Kind() Kind
	DiscoverPreliminaryDeps(key K) ([]Key, error)
	DiscoverDeps(key K, env Environment) ([]Key, error)
	Transform(ctx context.Context, key K, env Environment) (R, error)
}

// Adapt converts a TypedComputation into a Computation.
func Adapt[K Key, R any](c TypedComputation[K, R]) Computation {
	return &adapter[K, R]{inner: c}
}

type adapter[K Key, R any] struct {
	inner TypedComputation[K, R]
}

func (a *adapter[K, R]) Kind() Kind { return a.inner.Kind() }

func (a *adapter[K, R]) DiscoverPreliminaryDeps(key Key) ([]Key, error) {
	k, err := a.cast(key)
	if err != nil {
		return nil, err
	}
	return a.inner.DiscoverPreliminaryDeps(k)
}

func (a *adapter[K, R]) DiscoverDeps(key Key, env Environment) ([]Key, error) {
	k, err := a.cast(key)
	if err != nil {
		return nil, err
	}
	return a.inner.DiscoverDeps(k, env)
}

func (a *adapter[K, R]) Transform(ctx context.Context, key Key, env Environment) (any, error) {
	k, err := a.cast(key)
	if err != nil {
		return nil, err
	}
	return a.inner.Transform(ctx, k, env)
}

func (a *adapter[K, R]) cast(key Key) (K, error) {
	k, ok := key.(K)
	if !ok {
		var zero K
		return zero, apperrors.Internal(fmt.Errorf("computation %s: expected key %T, got %T", a.inner.Kind(), zero, key))
	}
	return k, nil
}

// NoDeps can be embedded by computations without dynamically discovered
// dependencies.
type NoDeps[K Key] struct{}

// DiscoverDeps returns nothing.
func (NoDeps[K]) DiscoverDeps(K, Environment) ([]Key, error) { return nil, nil }
