package rulekey

import (
	"context"
	"path/filepath"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/compute"
	"github.com/kbukum/buildgraph/target"
)

// FetchOutcome is the result of fetching one target's artifact. Misses and
// cache errors are outcomes, not failures.
type FetchOutcome struct {
	Target  target.BuildTarget
	RuleKey artifactcache.RuleKey
	Output  string
	Result  artifactcache.CacheResult
}

// Hit reports whether the artifact was materialized at Output.
func (o *FetchOutcome) Hit() bool { return o.Result.Type == artifactcache.ResultHit }

type fetchComputation struct {
	compute.NoDeps[FetchKey]
	cache  artifactcache.ArtifactCache
	outDir string
}

func (*fetchComputation) Kind() compute.Kind { return KindFetch }

func (*fetchComputation) DiscoverPreliminaryDeps(key FetchKey) ([]compute.Key, error) {
	return []compute.Key{Key{Target: key.Target}}, nil
}

func (c *fetchComputation) Transform(ctx context.Context, key FetchKey, env compute.Environment) (*FetchOutcome, error) {
	rk := compute.Get[artifactcache.RuleKey](env, Key{Target: key.Target})
	output := OutputPath(c.outDir, key.Target)

	result, err := c.cache.FetchAsync(ctx, key.Target, rk, output).Await(ctx)
	if err != nil {
		return nil, err
	}
	return &FetchOutcome{Target: key.Target, RuleKey: rk, Output: output, Result: result}, nil
}

// OutputPath returns where the artifact of t is written under outDir:
// <outDir>/[<cell>/]<package>/<name>.
func OutputPath(outDir string, t target.BuildTarget) string {
	parts := []string{outDir}
	if t.Cell != "" {
		parts = append(parts, t.Cell)
	}
	parts = append(parts, filepath.FromSlash(t.PackagePath()), t.ShortName)
	return filepath.Join(parts...)
}
