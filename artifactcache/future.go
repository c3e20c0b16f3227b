package artifactcache

import (
	"context"
	"sync"
)

// Future is a value that becomes available once. It is safe for concurrent
// use; every waiter observes the same value.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture returns an unresolved future. Resolve it with Complete.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already holding v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(v, nil)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.Complete(zero, err)
	return f
}

// Go runs fn in a new goroutine and resolves the future with its result.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		f.Complete(fn(ctx))
	}()
	return f
}

// Complete resolves the future. It reports false if it was already
// resolved, in which case v and err are dropped.
func (f *Future[T]) Complete(v T, err error) bool {
	first := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		first = true
	})
	return first
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
