package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/observability"
	"github.com/kbukum/buildgraph/resilience"
	"github.com/kbukum/buildgraph/target"
)

// errUnknownCause stands in for an ERROR result that carried no error.
var errUnknownCause = errors.New("unknown cache error")

// RetryOption configures a RetryingCache.
type RetryOption func(*RetryingCache)

// WithRetryBackoff waits d before the second attempt, doubling up to 8*d.
// The default is to re-issue immediately.
func WithRetryBackoff(d time.Duration) RetryOption {
	return func(c *RetryingCache) { c.backoff = d }
}

// WithRetryLogger sets the logger.
func WithRetryLogger(l *logger.Logger) RetryOption {
	return func(c *RetryingCache) { c.log = l }
}

// WithFetchMetrics records one fetch per FetchAsync on m.
func WithFetchMetrics(m *observability.Metrics) RetryOption {
	return func(c *RetryingCache) { c.metrics = m }
}

// RetryingCache re-issues failed fetches against its delegate. Every other
// operation passes through unchanged.
type RetryingCache struct {
	mode            Mode
	delegate        ArtifactCache
	maxFetchRetries int
	bus             EventBus
	backoff         time.Duration
	log             *logger.Logger
	metrics         *observability.Metrics
}

// NewRetryingCache wraps delegate. maxFetchRetries is the total number of
// fetch attempts and must be positive.
func NewRetryingCache(mode Mode, delegate ArtifactCache, maxFetchRetries int, bus EventBus, opts ...RetryOption) (*RetryingCache, error) {
	if maxFetchRetries <= 0 {
		return nil, apperrors.InvalidConfig("max_fetch_retries", fmt.Sprintf("max fetch retries must be positive, got %d", maxFetchRetries))
	}
	if delegate == nil {
		return nil, apperrors.InvalidConfig("delegate", "retrying cache needs a delegate")
	}
	c := &RetryingCache{
		mode:            mode,
		delegate:        delegate,
		maxFetchRetries: maxFetchRetries,
		bus:             bus,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrGlobal(c.log).WithComponent("retrying-cache")
	return c, nil
}

// FetchAsync fetches key, re-issuing the fetch after every ERROR result
// until an attempt succeeds or maxFetchRetries attempts were made. Attempts
// run one after another. On final failure the result's error joins the
// causes of every attempt.
func (c *RetryingCache) FetchAsync(ctx context.Context, t target.BuildTarget, key RuleKey, output string) *Future[CacheResult] {
	return Go(ctx, func(ctx context.Context) (CacheResult, error) {
		start := time.Now()
		var (
			causes []error
			last   CacheResult
		)

		cfg := resilience.FetchRetryConfig(c.maxFetchRetries, c.backoff)
		cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
			c.log.Info(fmt.Sprintf("failed to fetch %s after %d/%d attempts", key, attempt, c.maxFetchRetries), logger.Fields(
				logger.FieldRuleKey, key.String(),
				logger.FieldAttempt, attempt,
				logger.FieldError, err.Error(),
			))
		}

		result, err := resilience.Retry(ctx, cfg, func(int) (CacheResult, error) {
			res, err := c.delegate.FetchAsync(ctx, t, key, output).Await(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res = ErrorResult(string(c.mode), err)
			}
			last = res
			if res.Type != ResultError {
				return res, nil
			}
			cause := res.Err
			if cause == nil {
				cause = errUnknownCause
			}
			causes = append(causes, cause)
			return res, cause
		})
		if err == nil {
			c.record(ctx, result, len(causes)+1, start)
			return result, nil
		}
		if ctx.Err() != nil {
			// a cancelled fetch is the caller's doing, not a cache failure
			return CacheResult{}, ctx.Err()
		}

		joined := errors.Join(causes...)
		if !apperrors.HasCode(joined, apperrors.ErrCodeNoHealthyBackend) && c.bus != nil {
			c.bus.Post(Warning("Failed to fetch %s over %s after %d attempts.", key, c.mode, len(causes)))
		}
		last.Err = joined
		c.record(ctx, last, len(causes), start)
		return last, nil
	})
}

func (c *RetryingCache) record(ctx context.Context, res CacheResult, attempts int, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordFetch(ctx, string(c.mode), string(res.Type), attempts, time.Since(start))
}

func (c *RetryingCache) Store(ctx context.Context, info ArtifactInfo, source string) *Future[struct{}] {
	return c.delegate.Store(ctx, info, source)
}

func (c *RetryingCache) MultiContainsAsync(ctx context.Context, keys []RuleKey) *Future[map[RuleKey]CacheResult] {
	return c.delegate.MultiContainsAsync(ctx, keys)
}

func (c *RetryingCache) DeleteAsync(ctx context.Context, keys []RuleKey) *Future[DeleteResult] {
	return c.delegate.DeleteAsync(ctx, keys)
}

func (c *RetryingCache) StopAcceptingNewFetches() { c.delegate.StopAcceptingNewFetches() }

func (c *RetryingCache) ReadMode() ReadMode { return c.delegate.ReadMode() }

func (c *RetryingCache) Close() error { return c.delegate.Close() }

// Delegate returns the wrapped cache.
func (c *RetryingCache) Delegate() ArtifactCache { return c.delegate }

// MaxFetchRetries returns the configured number of fetch attempts.
func (c *RetryingCache) MaxFetchRetries() int { return c.maxFetchRetries }

var (
	_ ArtifactCache = (*RetryingCache)(nil)
	_ Decorator     = (*RetryingCache)(nil)
)
