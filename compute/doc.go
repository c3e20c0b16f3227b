// Package compute is a lazy, memoizing evaluator over a graph of keyed
// computations.
//
// A Key names one unit of work and its Kind selects the Computation that
// evaluates it. A computation declares its dependencies in two phases: a
// preliminary set known from the key alone, then additional keys discovered
// after inspecting already-resolved dependencies. The engine re-queries
// DiscoverDeps until it stops returning new keys, and only then calls
// Transform with an Environment that exposes exactly the declared
// dependencies.
//
// Each key is evaluated at most once per Engine. The first requester claims
// the key in the Store and starts a driver goroutine for it; later requesters
// wait for the same result. A dependency loop finalizes the key that closed
// it with a *dag.CycleError.
//
//	eng, err := compute.New([]compute.Computation{
//	    compute.Adapt[ManifestKey, *Manifest](manifests),
//	    compute.Adapt[RawNodeKey, *RawNode](rawNodes),
//	}, compute.WithLogger(log), compute.WithParallelism(8))
//	node, err := compute.Compute[*RawNode](ctx, eng, RawNodeKey{Target: t})
package compute
