package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/kbukum/buildgraph/component"
	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/resilience"
	"github.com/kbukum/buildgraph/target"
)

type member struct {
	name    string
	cache   ArtifactCache
	breaker *resilience.CircuitBreaker
}

// Balanced spreads fetches round-robin over several caches. Each member sits
// behind a circuit breaker; a fetch that finds no member admitting requests
// resolves as an ERROR carrying NO_HEALTHY_BACKEND. Stores go to every
// member.
type Balanced struct {
	name    string
	members []*member
	next    atomic.Uint64
	log     *logger.Logger
}

// NewBalanced creates a pool named name. breaker is the template for every
// member's circuit breaker; its Name is replaced by the member name.
func NewBalanced(name string, caches map[string]ArtifactCache, breaker resilience.CircuitBreakerConfig, log *logger.Logger) (*Balanced, error) {
	if len(caches) == 0 {
		return nil, apperrors.InvalidConfig("backends", "balanced cache needs at least one backend")
	}
	b := &Balanced{name: name, log: logger.OrGlobal(log).WithComponent(name)}
	for _, memberName := range slices.Sorted(maps.Keys(caches)) {
		cfg := breaker
		cfg.Name = memberName
		userHook := breaker.OnStateChange
		cfg.OnStateChange = func(n string, from, to resilience.State) {
			b.log.Warn("cache backend changed state", logger.Fields(
				logger.FieldBackend, n, "from", from.String(), "to", to.String(),
			))
			if userHook != nil {
				userHook(n, from, to)
			}
		}
		b.members = append(b.members, &member{
			name:    memberName,
			cache:   caches[memberName],
			breaker: resilience.NewCircuitBreaker(cfg),
		})
	}
	return b, nil
}

// record reports the outcome of a call to the member's breaker. Calls cut
// short by the caller's context do not count against the member.
func (m *member) record(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		m.breaker.Forget()
		return
	}
	m.breaker.Record(err)
}

// pick returns the next member whose breaker admits a request.
func (b *Balanced) pick() *member {
	n := len(b.members)
	start := int(b.next.Add(1)-1) % n
	for i := 0; i < n; i++ {
		m := b.members[(start+i)%n]
		if m.breaker.Allow() {
			return m
		}
	}
	return nil
}

func (b *Balanced) FetchAsync(ctx context.Context, t target.BuildTarget, key RuleKey, output string) *Future[CacheResult] {
	m := b.pick()
	if m == nil {
		return Resolved(ErrorResult(b.name, apperrors.NoHealthyBackend(b.name)))
	}
	return Go(ctx, func(ctx context.Context) (CacheResult, error) {
		res, err := m.cache.FetchAsync(ctx, t, key, output).Await(ctx)
		switch {
		case err != nil:
			m.record(ctx, err)
			return res, err
		case res.Type == ResultError:
			cause := res.Err
			if cause == nil {
				cause = errUnknownCause
			}
			m.record(ctx, fmt.Errorf("%s: %w", m.name, cause))
		default:
			m.record(ctx, nil)
		}
		return res, nil
	})
}

func (b *Balanced) Store(ctx context.Context, info ArtifactInfo, source string) *Future[struct{}] {
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		futures := make([]*Future[struct{}], len(b.members))
		for i, m := range b.members {
			futures[i] = m.cache.Store(ctx, info, source)
		}
		var errs error
		for i, f := range futures {
			if _, err := f.Await(ctx); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", b.members[i].name, err))
			}
		}
		return struct{}{}, errs
	})
}

// MultiContainsAsync asks the next healthy member.
func (b *Balanced) MultiContainsAsync(ctx context.Context, keys []RuleKey) *Future[map[RuleKey]CacheResult] {
	m := b.pick()
	if m == nil {
		out := make(map[RuleKey]CacheResult, len(keys))
		for _, k := range keys {
			out[k] = ErrorResult(b.name, apperrors.NoHealthyBackend(b.name))
		}
		return Resolved(out)
	}
	return Go(ctx, func(ctx context.Context) (map[RuleKey]CacheResult, error) {
		out, err := m.cache.MultiContainsAsync(ctx, keys).Await(ctx)
		m.record(ctx, err)
		return out, err
	})
}

func (b *Balanced) DeleteAsync(ctx context.Context, keys []RuleKey) *Future[DeleteResult] {
	return Go(ctx, func(ctx context.Context) (DeleteResult, error) {
		var (
			total DeleteResult
			errs  error
		)
		for _, m := range b.members {
			res, err := m.cache.DeleteAsync(ctx, keys).Await(ctx)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", m.name, err))
				continue
			}
			total.CacheNames = append(total.CacheNames, res.CacheNames...)
			total.Deleted += res.Deleted
		}
		return total, errs
	})
}

func (b *Balanced) StopAcceptingNewFetches() {
	for _, m := range b.members {
		m.cache.StopAcceptingNewFetches()
	}
}

// ReadMode is readonly if any member is readonly.
func (b *Balanced) ReadMode() ReadMode {
	for _, m := range b.members {
		if !m.cache.ReadMode().Writable() {
			return ReadOnly
		}
	}
	return ReadWrite
}

// Close closes every member and combines their errors.
func (b *Balanced) Close() error {
	var errs error
	for _, m := range b.members {
		if err := m.cache.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", m.name, err))
		}
	}
	return errs
}

// Health aggregates the breaker state of every member.
func (b *Balanced) Health(_ context.Context) component.Health {
	parts := make([]component.Health, 0, len(b.members))
	for _, m := range b.members {
		h := component.Health{Name: m.name, Status: component.StatusHealthy}
		switch m.breaker.State() {
		case resilience.StateOpen:
			h.Status = component.StatusUnhealthy
			h.Message = "circuit open"
		case resilience.StateHalfOpen:
			h.Status = component.StatusDegraded
			h.Message = "circuit half-open"
		default:
			if n := m.breaker.Failures(); n > 0 {
				h.Message = fmt.Sprintf("%d consecutive failures", n)
			}
		}
		parts = append(parts, h)
	}
	return component.Aggregate(b.name, parts)
}

// Members returns the member names in selection order.
func (b *Balanced) Members() []string {
	names := make([]string, len(b.members))
	for i, m := range b.members {
		names[i] = m.name
	}
	return names
}

var _ ArtifactCache = (*Balanced)(nil)
