// Package artifactcache defines the asynchronous artifact cache used to reuse
// build outputs keyed by rule key, and the decorators layered on top of it.
//
// Backends (dircache, rediscache, s3cache) store opaque blobs through the
// BlobStore interface and are wrapped by BlobCache, which handles read
// modes, materializing fetched artifacts and skipping fetches after
// StopAcceptingNewFetches. RetryingCache re-issues failed fetches
// sequentially and aggregates the failure history; Balanced spreads
// requests across several caches behind circuit breakers.
//
// Backends register a Factory under their Mode; New builds the configured
// backend and wraps it in a RetryingCache:
//
//	import _ "github.com/kbukum/buildgraph/artifactcache/dircache"
//
//	cache, err := artifactcache.New(cfg, &dircache.Config{Path: ".cache"}, bus, log)
//	res, err := cache.FetchAsync(ctx, t, key, "out/app/bin").Await(ctx)
package artifactcache
