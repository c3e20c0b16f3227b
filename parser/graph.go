package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/buildgraph/compute"
	"github.com/kbukum/buildgraph/dag"
	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/target"
)

const defaultPrefetch = 16

// TargetGraph is the set of targets reachable from a build's roots.
type TargetGraph struct {
	roots []target.BuildTarget
	res   *dag.Result[target.BuildTarget, *NodeWithDeps]
}

// Roots returns the targets the graph was built from.
func (g *TargetGraph) Roots() []target.BuildTarget {
	return append([]target.BuildTarget(nil), g.roots...)
}

// Targets returns every target in post-order: dependencies first.
func (g *TargetGraph) Targets() []target.BuildTarget { return g.res.Order() }

// Node returns the node of t.
func (g *TargetGraph) Node(t target.BuildTarget) (*NodeWithDeps, bool) {
	e, ok := g.res.Get(t)
	return e.Payload, ok
}

// Path returns the dependency path through which t was first reached.
func (g *TargetGraph) Path(t target.BuildTarget) *dag.DependencyStack[target.BuildTarget] {
	e, ok := g.res.Get(t)
	if !ok {
		return dag.Root[target.BuildTarget]()
	}
	return e.Stack
}

// Len returns the number of targets.
func (g *TargetGraph) Len() int { return g.res.Len() }

// GraphBuilder resolves target graphs through an Engine that has the
// parser computations registered.
type GraphBuilder struct {
	engine   *compute.Engine
	log      *logger.Logger
	prefetch int
}

// NewGraphBuilder creates a builder over engine.
func NewGraphBuilder(engine *compute.Engine, log *logger.Logger) *GraphBuilder {
	return &GraphBuilder{
		engine:   engine,
		log:      logger.OrGlobal(log).WithComponent("parser"),
		prefetch: defaultPrefetch,
	}
}

// WithPrefetch sets how many dependency nodes may be requested ahead of the
// walk. Zero disables prefetching.
func (b *GraphBuilder) WithPrefetch(n int) *GraphBuilder {
	b.prefetch = n
	return b
}

// Build walks every target reachable from roots. The walk itself is
// sequential; dependencies are requested from the engine ahead of time so
// their build files are parsed concurrently.
func (b *GraphBuilder) Build(ctx context.Context, roots []target.BuildTarget) (*TargetGraph, error) {
	ctx, cancel := context.WithCancel(ctx)
	var warm errgroup.Group
	if b.prefetch > 0 {
		warm.SetLimit(b.prefetch)
	}
	defer func() {
		cancel()
		_ = warm.Wait()
	}()

	prefetch := func(targets []target.BuildTarget) {
		if b.prefetch <= 0 {
			return
		}
		for _, t := range targets {
			key := NodeKey(t)
			if b.engine.State(key) != compute.StateUnstarted {
				continue
			}
			// Failures surface again when the walk reaches t.
			warm.TryGo(func() error {
				_, _ = b.engine.Compute(ctx, key)
				return nil
			})
		}
	}

	prefetch(roots)
	traversal := dag.NewTraversal[target.BuildTarget, *NodeWithDeps](func(t target.BuildTarget, stack *dag.DependencyStack[target.BuildTarget]) (*NodeWithDeps, []target.BuildTarget, error) {
		node, err := compute.Compute[*NodeWithDeps](ctx, b.engine, NodeKey(t))
		if err != nil {
			return nil, nil, &ResolveError{Target: t, Path: stack, Err: err}
		}
		prefetch(node.Deps)
		return node, node.Deps, nil
	})

	res, err := traversal.Traverse(roots)
	if err != nil {
		var cycle *dag.CycleError[target.BuildTarget]
		if errors.As(err, &cycle) {
			b.log.Warn("dependency cycle in target graph", logger.Fields(
				logger.FieldTarget, joinTargets(roots),
				logger.FieldError, cycle.Error(),
			))
			return nil, apperrors.New(apperrors.ErrCodeCycle,
				fmt.Sprintf("Cycle found while building the target graph of %s", joinTargets(roots))).
				WithCause(cycle).
				WithDetail("path", cycle.Path)
		}
		return nil, err
	}

	b.log.Debug("target graph built", logger.Fields(
		logger.FieldTarget, joinTargets(roots),
		"targets", res.Len(),
	))
	return &TargetGraph{roots: append([]target.BuildTarget(nil), roots...), res: res}, nil
}

// ResolveError reports a target whose node could not be computed, with the
// path that led to it.
type ResolveError struct {
	Target target.BuildTarget
	Path   *dag.DependencyStack[target.BuildTarget]
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Path.Len() > 1 {
		return fmt.Sprintf("resolving %s (via %s): %v", e.Target, e.Path, e.Err)
	}
	return fmt.Sprintf("resolving %s: %v", e.Target, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

func joinTargets(ts []target.BuildTarget) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
