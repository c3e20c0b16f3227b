package artifactcache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/artifactcache/cachetest"
	"github.com/kbukum/buildgraph/component"
	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/resilience"
)

func breakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour, HalfOpenMaxCalls: 1}
}

func TestBalanced_RoundRobin(t *testing.T) {
	a := cachetest.New(artifactcache.Hit("a", nil, 1))
	b := cachetest.New(artifactcache.Hit("b", nil, 1))
	pool, err := artifactcache.NewBalanced("pool", map[string]artifactcache.ArtifactCache{"a": a, "b": b}, breakerConfig(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewBalanced: %v", err)
	}

	for i := 0; i < 4; i++ {
		fetch(t, pool)
	}
	if a.Fetches() != 2 || b.Fetches() != 2 {
		t.Errorf("fetches a=%d b=%d, want 2 each", a.Fetches(), b.Fetches())
	}
}

func TestBalanced_NoHealthyBackend(t *testing.T) {
	down := cachetest.New(cachetest.Errors("down", errors.New("refused"))...)
	pool, err := artifactcache.NewBalanced("pool", map[string]artifactcache.ArtifactCache{"down": down}, breakerConfig(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewBalanced: %v", err)
	}

	if res := fetch(t, pool); res.Type != artifactcache.ResultError {
		t.Fatalf("first fetch type = %s, want ERROR", res.Type)
	}
	res := fetch(t, pool)
	if !apperrors.HasCode(res.Err, apperrors.ErrCodeNoHealthyBackend) {
		t.Errorf("expected NO_HEALTHY_BACKEND once the breaker opened, got %v", res.Err)
	}
	if down.Fetches() != 1 {
		t.Errorf("open breaker should stop fetches, got %d", down.Fetches())
	}
	if h := pool.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("health = %s, want unhealthy", h.Status)
	}
}

func TestBalanced_HealthReportsFailureRun(t *testing.T) {
	flaky := cachetest.New(cachetest.Errors("flaky", errors.New("timeout"))...)
	cfg := breakerConfig()
	cfg.MaxFailures = 3
	pool, err := artifactcache.NewBalanced("pool", map[string]artifactcache.ArtifactCache{"flaky": flaky}, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewBalanced: %v", err)
	}

	fetch(t, pool)
	h := pool.Health(context.Background())
	if h.Status != component.StatusHealthy || h.Message != "flaky: 1 consecutive failures" {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestBalanced_RetryingOverDeadPoolStaysQuiet(t *testing.T) {
	down := cachetest.New(cachetest.Errors("down", errors.New("refused"))...)
	pool, err := artifactcache.NewBalanced("pool", map[string]artifactcache.ArtifactCache{"down": down}, breakerConfig(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewBalanced: %v", err)
	}
	bus := &cachetest.Bus{}

	res := fetch(t, newRetrying(t, pool, 3, bus))

	if res.Type != artifactcache.ResultError {
		t.Fatalf("type = %s, want ERROR", res.Type)
	}
	if len(bus.Warnings()) != 0 {
		t.Errorf("expected the warning to be suppressed, got %v", bus.Warnings())
	}
}

func TestBalanced_StoreCloseAndReadMode(t *testing.T) {
	a, b := cachetest.New(), cachetest.New()
	b.SetReadMode(artifactcache.ReadOnly)
	pool, err := artifactcache.NewBalanced("pool", map[string]artifactcache.ArtifactCache{"a": a, "b": b}, breakerConfig(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewBalanced: %v", err)
	}
	ctx := context.Background()

	info := artifactcache.ArtifactInfo{RuleKeys: []artifactcache.RuleKey{testKey}}
	if _, err := pool.Store(ctx, info, "src").Await(ctx); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if len(a.Stores()) != 1 || len(b.Stores()) != 1 {
		t.Error("Store should reach every member")
	}
	if pool.ReadMode() != artifactcache.ReadOnly {
		t.Errorf("ReadMode() = %s, want readonly", pool.ReadMode())
	}
	if err := pool.Close(); err != nil || !a.Closed() || !b.Closed() {
		t.Errorf("Close should close every member (err %v)", err)
	}
}

func TestBalanced_CallerTimeoutsDoNotTripBreaker(t *testing.T) {
	slow := cachetest.New(artifactcache.Hit("slow", nil, 1))
	slow.Delay = 50 * time.Millisecond
	cfg := breakerConfig()
	cfg.MaxFailures = 2
	pool, err := artifactcache.NewBalanced("pool", map[string]artifactcache.ArtifactCache{"slow": slow}, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewBalanced: %v", err)
	}

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := pool.FetchAsync(ctx, testTarget, testKey, "").Await(context.Background())
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("fetch %d: err = %v, want context.DeadlineExceeded", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _ = pool.MultiContainsAsync(ctx, []artifactcache.RuleKey{testKey}).Await(context.Background())
	}

	if h := pool.Health(context.Background()); h.Status != component.StatusHealthy || h.Message != "" {
		t.Errorf("caller cancellations changed member health: %+v", h)
	}
	if res := fetch(t, pool); res.Type != artifactcache.ResultHit {
		t.Errorf("fetch after timeouts = %s (%s), want HIT", res.Type, res.CacheError())
	}
}

func TestNewBalanced_RequiresBackends(t *testing.T) {
	_, err := artifactcache.NewBalanced("pool", nil, breakerConfig(), logger.NewNop())
	if apperrors.CodeOf(err) != apperrors.ErrCodeInvalidConfig {
		t.Errorf("code = %s, want INVALID_CONFIG", apperrors.CodeOf(err))
	}
}
