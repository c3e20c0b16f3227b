package rulekey_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/artifactcache/cachetest"
	"github.com/kbukum/buildgraph/compute"
	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/parser"
	"github.com/kbukum/buildgraph/rulekey"
	"github.com/kbukum/buildgraph/target"
)

var (
	bin  = target.MustParse("//app:bin")
	lib  = target.MustParse("//app:lib")
	util = target.MustParse("//base:util")
)

func source(utilSrcs ...any) *parser.MemorySource {
	return parser.NewMemorySource().
		Add(bin, map[string]any{"rule": "binary", "deps": []any{":lib"}}).
		Add(lib, map[string]any{"rule": "library", "deps": []any{"//base:util"}}).
		Add(util, map[string]any{"rule": "library", "srcs": utilSrcs})
}

func newEngine(t *testing.T, src parser.ManifestSource, cache artifactcache.ArtifactCache, outDir string) *compute.Engine {
	t.Helper()
	comps := append(parser.Computations(src, parser.Config{}), rulekey.Computations(cache, outDir)...)
	engine, err := compute.New(comps, compute.WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("compute.New: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func ruleKey(t *testing.T, engine *compute.Engine, tgt target.BuildTarget) artifactcache.RuleKey {
	t.Helper()
	rk, err := compute.Compute[artifactcache.RuleKey](context.Background(), engine, rulekey.Key{Target: tgt})
	if err != nil {
		t.Fatalf("rule key of %s: %v", tgt, err)
	}
	return rk
}

func TestRuleKey_Deterministic(t *testing.T) {
	a := ruleKey(t, newEngine(t, source("util.go"), nil, ""), bin)
	b := ruleKey(t, newEngine(t, source("util.go"), nil, ""), bin)
	if a != b {
		t.Errorf("equal graphs produced different keys: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected a hex sha256, got %q", a)
	}
}

func TestRuleKey_ChangesWithTransitiveDependency(t *testing.T) {
	before := newEngine(t, source("util.go"), nil, "")
	after := newEngine(t, source("util.go", "extra.go"), nil, "")

	for _, tgt := range []target.BuildTarget{util, lib, bin} {
		if ruleKey(t, before, tgt) == ruleKey(t, after, tgt) {
			t.Errorf("rule key of %s should change when //base:util changes", tgt)
		}
	}
}

func TestRuleKey_DiscoversDependencyKeys(t *testing.T) {
	engine := newEngine(t, source(), nil, "")
	ruleKey(t, engine, bin)

	for _, dep := range []target.BuildTarget{lib, util} {
		if got := engine.State(rulekey.Key{Target: dep}); got != compute.StateFinalized {
			t.Errorf("rule key of %s in state %s, want finalized", dep, got)
		}
	}
}

func TestRuleKey_SelfDependencyIsCycle(t *testing.T) {
	src := parser.NewMemorySource().Add(bin, map[string]any{"deps": []any{":bin"}})
	engine := newEngine(t, src, nil, "")

	_, err := engine.Compute(context.Background(), rulekey.Key{Target: bin})
	if !apperrors.HasCode(err, apperrors.ErrCodeCycle) {
		t.Fatalf("expected CYCLE_DETECTED, got %v", err)
	}
}

func TestHash_MapOrderIndependent(t *testing.T) {
	a, err := rulekey.Hash(map[string]any{"x": 1, "y": []any{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := rulekey.Hash(map[string]any{"y": []any{"a", "b"}, "x": 1})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("hash depends on map order: %s vs %s", a, b)
	}

	if _, err := rulekey.Hash(map[string]any{"f": func() {}}); apperrors.CodeOf(err) != apperrors.ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR for an unencodable value, got %v", err)
	}
}

func TestRuleKey_NonStringMapKeys(t *testing.T) {
	src := parser.NewMemorySource().Add(bin, map[string]any{"env": map[any]any{1: "one"}})
	engine := newEngine(t, src, nil, "")
	ruleKey(t, engine, bin)
}

func TestFetch_HitMaterializesArtifact(t *testing.T) {
	ctx := context.Background()
	cache := artifactcache.NewMemoryCache(artifactcache.ReadWrite, logger.NewNop())
	outDir := t.TempDir()
	engine := newEngine(t, source(), cache, outDir)

	rk := ruleKey(t, engine, util)
	if err := cache.BlobStore().Put(ctx, rk, artifactcache.Blob{Data: []byte("artifact")}); err != nil {
		t.Fatal(err)
	}

	outcome, err := compute.Compute[*rulekey.FetchOutcome](ctx, engine, rulekey.FetchKey{Target: util})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !outcome.Hit() || outcome.RuleKey != rk {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	want := filepath.Join(outDir, "base", "util")
	if outcome.Output != want {
		t.Errorf("Output = %q, want %q", outcome.Output, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "artifact" {
		t.Errorf("artifact not materialized: %q, %v", data, err)
	}
}

func TestFetch_MissAndErrorsAreOutcomes(t *testing.T) {
	ctx := context.Background()
	fake := cachetest.New(cachetest.Errors("memory", errors.New("X"), errors.New("Y"))...)
	bus := &cachetest.Bus{}
	retrying, err := artifactcache.NewRetryingCache(artifactcache.ModeMemory, fake, 2, bus)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		cache artifactcache.ArtifactCache
		want  artifactcache.ResultType
	}{
		{"miss", artifactcache.NewMemoryCache(artifactcache.ReadWrite, logger.NewNop()), artifactcache.ResultMiss},
		{"exhausted retries", retrying, artifactcache.ResultError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := newEngine(t, source(), tc.cache, t.TempDir())
			outcome, err := compute.Compute[*rulekey.FetchOutcome](ctx, engine, rulekey.FetchKey{Target: bin})
			if err != nil {
				t.Fatalf("fetch should not fail: %v", err)
			}
			if outcome.Result.Type != tc.want {
				t.Errorf("result type = %s, want %s", outcome.Result.Type, tc.want)
			}
		})
	}

	if got := fake.Fetches(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
	if len(bus.Warnings()) != 1 {
		t.Errorf("expected one warning, got %v", bus.Events())
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		tgt  target.BuildTarget
		want string
	}{
		{target.MustParse("//a/b:c"), filepath.Join("out", "a", "b", "c")},
		{target.MustParse("cell//a:c"), filepath.Join("out", "cell", "a", "c")},
		{target.MustParse("//:root"), filepath.Join("out", "root")},
	}
	for _, tc := range tests {
		if got := rulekey.OutputPath("out", tc.tgt); got != tc.want {
			t.Errorf("OutputPath(%s) = %q, want %q", tc.tgt, got, tc.want)
		}
	}
}
