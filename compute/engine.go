package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/resilience"
)

// ErrEngineClosed is returned by Compute after Close.
var ErrEngineClosed = errors.New("compute: engine closed")

// Engine evaluates keys on demand and memoizes every result for its
// lifetime.
type Engine struct {
	id           string
	computations map[Kind]Computation
	store        Store
	log          *logger.Logger
	bulkhead     *resilience.Bulkhead
	waits        *waitGraph

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// life orders driver starts against Close: drivers are added under the
	// read lock, closed is set under the write lock.
	life   sync.RWMutex
	closed atomic.Bool
}

// New creates an Engine for the given computations. Registering two
// computations for the same Kind is an error.
func New(computations []Computation, opts ...Option) (*Engine, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = NewMemoryStore()
	}

	id := uuid.NewString()
	log := logger.OrGlobal(o.log).WithComponent("compute").WithFields(map[string]interface{}{
		logger.FieldEngineID: id,
	})

	registry := make(map[Kind]Computation, len(computations))
	for _, c := range computations {
		if c == nil {
			return nil, apperrors.InvalidConfig("computations", "nil computation")
		}
		if _, dup := registry[c.Kind()]; dup {
			return nil, apperrors.InvalidConfig("computations", fmt.Sprintf("duplicate computation for kind %q", c.Kind()))
		}
		if o.metrics != nil {
			c = WithMetrics(c, o.metrics)
		}
		if o.tracePrefix != "" {
			c = WithTracing(c, o.tracePrefix)
		}
		registry[c.Kind()] = c
	}

	var bulkhead *resilience.Bulkhead
	if o.parallelism > 0 {
		bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "compute",
			MaxConcurrent: o.parallelism,
			MaxWait:       -1,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		id:           id,
		computations: registry,
		store:        o.store,
		log:          log,
		bulkhead:     bulkhead,
		waits:        newWaitGraph(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// ID returns the engine instance id used in logs.
func (e *Engine) ID() string { return e.id }

// Compute returns the result for key, evaluating it and its dependencies if
// nobody has yet. Cancelling ctx stops waiting; the evaluation itself keeps
// running for other requesters.
func (e *Engine) Compute(ctx context.Context, key Key) (any, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	entry := e.ensure(ctx, key)
	select {
	case <-entry.Done():
		return entry.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Compute is the typed form of Engine.Compute.
func Compute[R any](ctx context.Context, e *Engine, key Key) (R, error) {
	var zero R
	v, err := e.Compute(ctx, key)
	if err != nil {
		return zero, err
	}
	r, ok := v.(R)
	if !ok {
		return zero, apperrors.Internal(fmt.Errorf("key %v: expected %T, got %T", key, zero, v))
	}
	return r, nil
}

// ComputeAll evaluates keys concurrently and returns every result. The
// first error is returned; results of the other keys stay memoized.
func (e *Engine) ComputeAll(ctx context.Context, keys []Key) (map[Key]any, error) {
	var mu sync.Mutex
	results := make(map[Key]any, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			v, err := e.Compute(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			results[key] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// State reports the evaluation progress of key.
func (e *Engine) State(key Key) State {
	entry, ok := e.store.Lookup(key)
	if !ok {
		return StateUnstarted
	}
	return entry.State()
}

// Close cancels in-flight evaluations and waits for their drivers to exit.
// Keys that had not finalized are finalized with context.Canceled.
func (e *Engine) Close() {
	e.life.Lock()
	first := e.closed.CompareAndSwap(false, true)
	e.life.Unlock()
	if !first {
		return
	}
	e.cancel()
	e.wg.Wait()
}

// ensure claims key and starts its driver if this caller is the owner. A key
// claimed after Close is finalized with ErrEngineClosed instead.
func (e *Engine) ensure(ctx context.Context, key Key) *Entry {
	entry, owner := e.store.Claim(key)
	if !owner {
		return entry
	}

	e.life.RLock()
	defer e.life.RUnlock()
	if e.closed.Load() {
		entry.finalize(nil, ErrEngineClosed)
		return entry
	}
	entry.setState(StateAwaitingPreliminaryDeps)
	dctx := trace.ContextWithSpan(e.ctx, trace.SpanFromContext(ctx))
	e.wg.Add(1)
	go e.drive(dctx, key, entry)
	return entry
}

// drive runs the state machine of one key to completion.
func (e *Engine) drive(ctx context.Context, key Key, entry *Entry) {
	defer e.wg.Done()
	start := time.Now()

	value, err := e.evaluate(ctx, key, entry)
	entry.finalize(value, err)

	fields := map[string]interface{}{
		logger.FieldKind:     string(key.Kind()),
		logger.FieldKey:      fmt.Sprint(key),
		logger.FieldDuration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields[logger.FieldError] = err.Error()
		e.log.Debug("key finalized with error", fields)
		return
	}
	e.log.Debug("key finalized", fields)
}

func (e *Engine) evaluate(ctx context.Context, key Key, entry *Entry) (any, error) {
	comp, ok := e.computations[key.Kind()]
	if !ok {
		return nil, apperrors.UnknownComputation(string(key.Kind()))
	}

	env := newEnvironment(comp.Kind())

	preliminary, err := guard(e, ctx, key, func() ([]Key, error) {
		return comp.DiscoverPreliminaryDeps(key)
	})
	if err != nil {
		return nil, err
	}
	if err := e.await(ctx, key, preliminary, env); err != nil {
		return nil, err
	}

	entry.setState(StateAwaitingDiscoveredDeps)
	for {
		discovered, err := guard(e, ctx, key, func() ([]Key, error) {
			return comp.DiscoverDeps(key, env)
		})
		if err != nil {
			return nil, err
		}
		fresh := newKeys(discovered, env)
		if len(fresh) == 0 {
			break
		}
		if err := e.await(ctx, key, fresh, env); err != nil {
			return nil, err
		}
	}

	entry.setState(StateEvaluating)
	return guard(e, ctx, key, func() (any, error) {
		return comp.Transform(ctx, key, env)
	})
}

// await requests every dep, then blocks until all of them finalized and
// copies their results into env.
func (e *Engine) await(ctx context.Context, waiter Key, deps []Key, env *environment) error {
	if len(deps) == 0 {
		return nil
	}
	defer e.waits.release(waiter)

	entries := make([]*Entry, len(deps))
	for i, dep := range deps {
		if existing, ok := e.store.Lookup(dep); !ok || !existing.Finalized() {
			if cycle := e.waits.add(waiter, dep); cycle != nil {
				e.log.Warn("dependency cycle detected", logger.Fields(
					logger.FieldKey, fmt.Sprint(waiter),
					logger.FieldError, cycle.Error(),
				))
				return cycle
			}
		}
		entries[i] = e.ensure(ctx, dep)
	}

	for i, entry := range entries {
		select {
		case <-entry.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		v, err := entry.Result()
		if err != nil {
			return apperrors.DependencyFailed(waiter, deps[i], err)
		}
		env.put(deps[i], v)
	}
	return nil
}

// guard runs fn under the engine bulkhead and turns a panic into the key's
// error. An undeclared dependency read is logged loudly.
func guard[T any](e *Engine, ctx context.Context, key Key, fn func() (T, error)) (result T, err error) {
	call := func() (out T, callErr error) {
		defer func() {
			if r := recover(); r != nil {
				callErr = recovered(r)
				if apperrors.HasCode(callErr, apperrors.ErrCodeUndeclaredDependency) {
					e.log.Error("computation read an undeclared dependency", logger.Fields(
						logger.FieldKind, string(key.Kind()),
						logger.FieldKey, fmt.Sprint(key),
						logger.FieldError, callErr.Error(),
					))
				}
			}
		}()
		return fn()
	}
	if e.bulkhead == nil {
		return call()
	}
	return resilience.ExecuteWithResult(e.bulkhead, ctx, call)
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		var app *apperrors.AppError
		if errors.As(err, &app) {
			return err
		}
		return apperrors.Internal(fmt.Errorf("panic: %w", err))
	}
	return apperrors.Internal(fmt.Errorf("panic: %v", r))
}

// newKeys returns the keys of discovered not yet declared in env, without
// duplicates, in order.
func newKeys(discovered []Key, env *environment) []Key {
	var fresh []Key
	seen := make(map[Key]struct{}, len(discovered))
	for _, k := range discovered {
		if _, dup := seen[k]; dup || env.has(k) {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, k)
	}
	return fresh
}
