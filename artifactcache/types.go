package artifactcache

import (
	"context"

	"github.com/kbukum/buildgraph/target"
)

// RuleKey is the content hash identifying one build output.
type RuleKey string

func (k RuleKey) String() string { return string(k) }

// Mode names a cache backend.
type Mode string

const (
	ModeDir    Mode = "dir"
	ModeRedis  Mode = "redis"
	ModeS3     Mode = "s3"
	ModeMemory Mode = "memory"
	ModeNone   Mode = "none"
)

// ReadMode controls whether a cache accepts stores.
type ReadMode string

const (
	ReadWrite ReadMode = "readwrite"
	ReadOnly  ReadMode = "readonly"
)

// Writable reports whether stores are accepted.
func (m ReadMode) Writable() bool { return m != ReadOnly }

// ResultType classifies a cache lookup outcome.
type ResultType string

const (
	ResultHit     ResultType = "HIT"
	ResultMiss    ResultType = "MISS"
	ResultError   ResultType = "ERROR"
	ResultSkipped ResultType = "SKIPPED"
	ResultIgnored ResultType = "IGNORED"
)

// CacheResult is the outcome of one fetch or contains check.
type CacheResult struct {
	Type         ResultType
	Source       string
	Err          error
	Metadata     map[string]string
	ArtifactSize int64
}

// CacheError returns the failure text, or "" when the result carries no
// error.
func (r CacheResult) CacheError() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Hit returns a successful lookup result.
func Hit(source string, metadata map[string]string, size int64) CacheResult {
	return CacheResult{Type: ResultHit, Source: source, Metadata: metadata, ArtifactSize: size}
}

// Miss returns a result for an artifact the cache does not have.
func Miss(source string) CacheResult {
	return CacheResult{Type: ResultMiss, Source: source}
}

// ErrorResult returns a failed lookup result.
func ErrorResult(source string, err error) CacheResult {
	return CacheResult{Type: ResultError, Source: source, Err: err}
}

// Skipped returns the result of a fetch issued after
// StopAcceptingNewFetches.
func Skipped() CacheResult {
	return CacheResult{Type: ResultSkipped}
}

// Ignored returns the result of a cache that is switched off.
func Ignored() CacheResult {
	return CacheResult{Type: ResultIgnored}
}

// ArtifactInfo describes an artifact being stored.
type ArtifactInfo struct {
	RuleKeys []RuleKey
	Target   target.BuildTarget
	Metadata map[string]string
}

// DeleteResult reports a delete request.
type DeleteResult struct {
	CacheNames []string
	Deleted    int
}

// ArtifactCache is an asynchronous store of build artifacts.
//
// Fetch-side failures are reported inside CacheResult, never through the
// future's error; the future fails only when ctx ends first.
type ArtifactCache interface {
	// FetchAsync looks up key and, on a hit, materializes the artifact at
	// output.
	FetchAsync(ctx context.Context, t target.BuildTarget, key RuleKey, output string) *Future[CacheResult]
	// Store uploads the file at source under every rule key of info.
	Store(ctx context.Context, info ArtifactInfo, source string) *Future[struct{}]
	// MultiContainsAsync reports, per key, whether the cache holds it.
	MultiContainsAsync(ctx context.Context, keys []RuleKey) *Future[map[RuleKey]CacheResult]
	// DeleteAsync removes keys.
	DeleteAsync(ctx context.Context, keys []RuleKey) *Future[DeleteResult]
	// StopAcceptingNewFetches makes later fetches resolve as SKIPPED.
	StopAcceptingNewFetches()
	ReadMode() ReadMode
	Close() error
}

// Decorator is implemented by caches that wrap another cache.
type Decorator interface {
	Delegate() ArtifactCache
}
