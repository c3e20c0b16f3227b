package artifactcache

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync/atomic"

	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/target"
)

// MetadataTarget is the metadata key holding the producing target.
const MetadataTarget = "target"

// Blob is one stored artifact.
type Blob struct {
	Data     []byte
	Metadata map[string]string
}

// BlobStore is the storage a backend provides. Implementations report a
// missing key with ok == false, not with an error.
type BlobStore interface {
	Get(ctx context.Context, key RuleKey) (blob Blob, ok bool, err error)
	Put(ctx context.Context, key RuleKey, blob Blob) error
	Exists(ctx context.Context, keys []RuleKey) (map[RuleKey]bool, error)
	Delete(ctx context.Context, keys []RuleKey) (int, error)
	Close() error
}

// BlobCache implements ArtifactCache on top of a BlobStore.
type BlobCache struct {
	name     string
	readMode ReadMode
	store    BlobStore
	log      *logger.Logger
	skipping atomic.Bool
}

// NewBlobCache creates a BlobCache. name is used as the result source and
// in errors.
func NewBlobCache(name string, readMode ReadMode, store BlobStore, log *logger.Logger) *BlobCache {
	if readMode == "" {
		readMode = ReadWrite
	}
	return &BlobCache{
		name:     name,
		readMode: readMode,
		store:    store,
		log:      logger.OrGlobal(log).WithComponent(name),
	}
}

// Name returns the cache name.
func (c *BlobCache) Name() string { return c.name }

// BlobStore returns the underlying store.
func (c *BlobCache) BlobStore() BlobStore { return c.store }

func (c *BlobCache) FetchAsync(ctx context.Context, _ target.BuildTarget, key RuleKey, output string) *Future[CacheResult] {
	if c.skipping.Load() {
		return Resolved(Skipped())
	}
	return Go(ctx, func(ctx context.Context) (CacheResult, error) {
		blob, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return ErrorResult(c.name, apperrors.CacheError(c.name, err)), nil
		}
		if !ok {
			return Miss(c.name), nil
		}
		if output != "" {
			if err := materialize(output, blob.Data); err != nil {
				return ErrorResult(c.name, apperrors.CacheError(c.name, err)), nil
			}
		}
		return Hit(c.name, blob.Metadata, int64(len(blob.Data))), nil
	})
}

func (c *BlobCache) Store(ctx context.Context, info ArtifactInfo, source string) *Future[struct{}] {
	if !c.readMode.Writable() {
		return Resolved(struct{}{})
	}
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		data, err := os.ReadFile(source)
		if err != nil {
			return struct{}{}, apperrors.CacheError(c.name, fmt.Errorf("reading %s: %w", source, err))
		}
		meta := make(map[string]string, len(info.Metadata)+1)
		maps.Copy(meta, info.Metadata)
		if !info.Target.IsZero() {
			meta[MetadataTarget] = info.Target.String()
		}
		for _, key := range info.RuleKeys {
			if err := c.store.Put(ctx, key, Blob{Data: data, Metadata: meta}); err != nil {
				return struct{}{}, apperrors.CacheError(c.name, err)
			}
		}
		c.log.Debug("stored artifact", logger.Fields(
			logger.FieldTarget, info.Target.String(),
			logger.FieldRuleKey, fmt.Sprint(info.RuleKeys),
		))
		return struct{}{}, nil
	})
}

func (c *BlobCache) MultiContainsAsync(ctx context.Context, keys []RuleKey) *Future[map[RuleKey]CacheResult] {
	return Go(ctx, func(ctx context.Context) (map[RuleKey]CacheResult, error) {
		out := make(map[RuleKey]CacheResult, len(keys))
		found, err := c.store.Exists(ctx, keys)
		for _, key := range keys {
			switch {
			case err != nil:
				out[key] = ErrorResult(c.name, apperrors.CacheError(c.name, err))
			case found[key]:
				out[key] = Hit(c.name, nil, 0)
			default:
				out[key] = Miss(c.name)
			}
		}
		return out, nil
	})
}

func (c *BlobCache) DeleteAsync(ctx context.Context, keys []RuleKey) *Future[DeleteResult] {
	return Go(ctx, func(ctx context.Context) (DeleteResult, error) {
		n, err := c.store.Delete(ctx, keys)
		if err != nil {
			return DeleteResult{}, apperrors.CacheError(c.name, err)
		}
		return DeleteResult{CacheNames: []string{c.name}, Deleted: n}, nil
	})
}

func (c *BlobCache) StopAcceptingNewFetches() { c.skipping.Store(true) }

func (c *BlobCache) ReadMode() ReadMode { return c.readMode }

func (c *BlobCache) Close() error { return c.store.Close() }

// materialize writes data to a temporary file next to output and renames it
// into place, so output never holds a partial artifact.
func materialize(output string, data []byte) error {
	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(output)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil { //nolint:gosec // build outputs are world-readable
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmpName, output); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

var _ ArtifactCache = (*BlobCache)(nil)
