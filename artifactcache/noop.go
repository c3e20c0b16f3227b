package artifactcache

import (
	"context"

	"github.com/kbukum/buildgraph/target"
)

// NoopCache is the cache used when caching is switched off. Every fetch is
// IGNORED and stores are dropped.
type NoopCache struct{}

func (NoopCache) FetchAsync(context.Context, target.BuildTarget, RuleKey, string) *Future[CacheResult] {
	return Resolved(Ignored())
}

func (NoopCache) Store(context.Context, ArtifactInfo, string) *Future[struct{}] {
	return Resolved(struct{}{})
}

func (NoopCache) MultiContainsAsync(_ context.Context, keys []RuleKey) *Future[map[RuleKey]CacheResult] {
	out := make(map[RuleKey]CacheResult, len(keys))
	for _, k := range keys {
		out[k] = Ignored()
	}
	return Resolved(out)
}

func (NoopCache) DeleteAsync(context.Context, []RuleKey) *Future[DeleteResult] {
	return Resolved(DeleteResult{})
}

func (NoopCache) StopAcceptingNewFetches() {}

func (NoopCache) ReadMode() ReadMode { return ReadOnly }

func (NoopCache) Close() error { return nil }

var _ ArtifactCache = NoopCache{}
