// Package resilience provides the fault-tolerance primitives used across the
// build graph:
//   - Retry: sequential re-attempts with optional exponential backoff, used by
//     the artifact cache fetch ladder
//   - CircuitBreaker: per-backend health gate, used by the balanced cache
//   - Bulkhead: concurrency limit, used to bound computation callbacks
//
// They compose in the usual way:
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "redis-0", MaxFailures: 3})
//	res, err := resilience.Retry(ctx, resilience.FetchRetryConfig(3, 0), func(attempt int) (Result, error) {
//	    var r Result
//	    err := cb.Execute(func() error { r, err = fetch(ctx); return err })
//	    return r, err
//	})
package resilience
