package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/component"
	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/target"
)

// newTestStore creates a Store backed by miniredis.
func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	cfg := Config{Addrs: []string{mini.Addr()}}
	cfg.ApplyDefaults()
	store := NewStore(NewClient(cfg, mini.Addr(), logger.NewNop()), "test", ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mini
}

func TestStore_PutAndGet(t *testing.T) {
	store, mini := newTestStore(t, 0)
	ctx := context.Background()

	blob := artifactcache.Blob{Data: []byte{0, 1, 2, 255}, Metadata: map[string]string{"target": "//a:b"}}
	if err := store.Put(ctx, "k1", blob); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !mini.Exists("test:k1") {
		t.Error("expected key with prefix in redis")
	}

	got, ok, err := store.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v)", ok, err)
	}
	if string(got.Data) != string(blob.Data) {
		t.Errorf("data = %v, want %v", got.Data, blob.Data)
	}
	if got.Metadata["target"] != "//a:b" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t, 0)
	_, ok, err := store.Get(context.Background(), "nope")
	if ok || err != nil {
		t.Errorf("Get(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestStore_TTL(t *testing.T) {
	store, mini := newTestStore(t, time.Minute)
	if err := store.Put(context.Background(), "k1", artifactcache.Blob{Data: []byte("x")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ttl := mini.TTL("test:k1"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}
	mini.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(context.Background(), "k1"); ok {
		t.Error("expected artifact to expire")
	}
}

func TestStore_ExistsAndDelete(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()
	if err := store.Put(ctx, "a", artifactcache.Blob{Data: []byte("x")}); err != nil {
		t.Fatal(err)
	}

	found, err := store.Exists(ctx, []artifactcache.RuleKey{"a", "b"})
	if err != nil || !found["a"] || found["b"] {
		t.Errorf("Exists = (%v, %v)", found, err)
	}
	n, err := store.Delete(ctx, []artifactcache.RuleKey{"a", "b"})
	if err != nil || n != 1 {
		t.Errorf("Delete = (%d, %v), want 1", n, err)
	}
}

func TestStore_UnreachableServerIsAnError(t *testing.T) {
	store, mini := newTestStore(t, 0)
	mini.Close()

	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Error("expected an error from a closed server")
	}
	if h := store.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("health = %+v, want unhealthy", h)
	}
}

func TestNewCache_SingleAddress(t *testing.T) {
	mini := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewCache(artifactcache.ReadWrite, &Config{Addrs: []string{mini.Addr()}}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close() //nolint:errcheck

	if _, ok := cache.(*artifactcache.BlobCache); !ok {
		t.Fatalf("got %T, want *BlobCache", cache)
	}
	res, err := cache.FetchAsync(ctx, target.New("", "a", "b"), "k", "").Await(ctx)
	if err != nil || res.Type != artifactcache.ResultMiss {
		t.Errorf("fetch = (%+v, %v), want MISS", res, err)
	}
}

func TestNewCache_SeveralAddressesBalance(t *testing.T) {
	up := miniredis.RunT(t)
	down := miniredis.RunT(t)
	downAddr := down.Addr()
	down.Close()

	cfg := &Config{
		Addrs:           []string{up.Addr(), downAddr},
		BreakerFailures: 1,
		BreakerTimeout:  "1h",
		DialTimeout:     "100ms",
		MaxRetries:      -1,
	}
	cache, err := NewCache(artifactcache.ReadWrite, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close() //nolint:errcheck

	pool, ok := cache.(*artifactcache.Balanced)
	if !ok {
		t.Fatalf("got %T, want *Balanced", cache)
	}
	ctx := context.Background()
	var sawError bool
	for i := 0; i < 4; i++ {
		res, err := pool.FetchAsync(ctx, target.BuildTarget{}, "k", "").Await(ctx)
		if err != nil {
			t.Fatalf("Await: %v", err)
		}
		if res.Type == artifactcache.ResultError {
			sawError = true
			if apperrors.CodeOf(res.Err) != apperrors.ErrCodeCache {
				t.Errorf("error code = %s, want CACHE_ERROR", apperrors.CodeOf(res.Err))
			}
		}
	}
	if !sawError {
		t.Error("expected the dead member to fail once before its breaker opened")
	}
	if h := pool.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("pool health = %s, want unhealthy with one open circuit", h.Status)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Addrs: []string{"localhost:6379"}}, false},
		{"no addrs", Config{}, true},
		{"bad addr", Config{Addrs: []string{"localhost"}}, true},
		{"bad ttl", Config{Addrs: []string{"localhost:6379"}, TTL: "forever"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.ApplyDefaults()
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && apperrors.CodeOf(err) != apperrors.ErrCodeInvalidConfig {
				t.Errorf("code = %s, want INVALID_CONFIG", apperrors.CodeOf(err))
			}
		})
	}
}

func TestFactory_RegisteredForRedisMode(t *testing.T) {
	mini := miniredis.RunT(t)
	cache, err := artifactcache.New(artifactcache.Config{Mode: artifactcache.ModeRedis}, &Config{Addrs: []string{mini.Addr()}}, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cache.Close() //nolint:errcheck
	if _, ok := cache.(*artifactcache.RetryingCache); !ok {
		t.Errorf("got %T, want *RetryingCache", cache)
	}
}
