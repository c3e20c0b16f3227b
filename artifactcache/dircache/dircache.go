// Package dircache is an artifact cache backend on the local filesystem.
// Artifacts live at <root>/<first two key characters>/<key> with their
// metadata in a JSON sidecar next to them.
package dircache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/component"
	"github.com/kbukum/buildgraph/logger"
)

const metaSuffix = ".meta.json"

func init() {
	artifactcache.RegisterFactory(artifactcache.ModeDir, func(cfg artifactcache.Config, providerCfg any, log *logger.Logger) (artifactcache.ArtifactCache, error) {
		c := &Config{}
		if providerCfg != nil {
			pc, ok := providerCfg.(*Config)
			if !ok {
				return nil, fmt.Errorf("dircache: expected *dircache.Config, got %T", providerCfg)
			}
			c = pc
		}
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		store, err := NewStore(c.Path)
		if err != nil {
			return nil, err
		}
		return artifactcache.NewBlobCache(string(artifactcache.ModeDir), cfg.ReadMode, store, log), nil
	})
}

// Store implements artifactcache.BlobStore on a directory.
type Store struct {
	root string
}

// NewStore creates the cache root if needed.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("dircache: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("dircache: create root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute cache directory.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key artifactcache.RuleKey) (string, error) {
	k := string(key)
	if len(k) < 2 || k != filepath.Base(k) || k == ".." {
		return "", fmt.Errorf("dircache: invalid rule key %q", k)
	}
	return filepath.Join(s.root, k[:2], k), nil
}

func (s *Store) Get(_ context.Context, key artifactcache.RuleKey) (artifactcache.Blob, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return artifactcache.Blob{}, false, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifactcache.Blob{}, false, nil
		}
		return artifactcache.Blob{}, false, fmt.Errorf("dircache: read artifact: %w", err)
	}

	var meta map[string]string
	raw, err := os.ReadFile(p + metaSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &meta); err != nil {
			return artifactcache.Blob{}, false, fmt.Errorf("dircache: decode metadata: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return artifactcache.Blob{}, false, fmt.Errorf("dircache: read metadata: %w", err)
	}
	return artifactcache.Blob{Data: data, Metadata: meta}, true, nil
}

// Put writes the artifact through a temporary file and renames it into
// place, so concurrent readers never see a partial artifact.
func (s *Store) Put(_ context.Context, key artifactcache.RuleKey, blob artifactcache.Blob) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("dircache: create directory: %w", err)
	}

	if len(blob.Metadata) > 0 {
		raw, err := json.Marshal(blob.Metadata)
		if err != nil {
			return fmt.Errorf("dircache: encode metadata: %w", err)
		}
		if err := writeAtomic(p+metaSuffix, raw); err != nil {
			return err
		}
	}
	return writeAtomic(p, blob.Data)
}

func (s *Store) Exists(_ context.Context, keys []artifactcache.RuleKey) (map[artifactcache.RuleKey]bool, error) {
	out := make(map[artifactcache.RuleKey]bool, len(keys))
	for _, key := range keys {
		p, err := s.path(key)
		if err != nil {
			return nil, err
		}
		_, err = os.Stat(p)
		switch {
		case err == nil:
			out[key] = true
		case errors.Is(err, fs.ErrNotExist):
			out[key] = false
		default:
			return nil, fmt.Errorf("dircache: stat artifact: %w", err)
		}
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, keys []artifactcache.RuleKey) (int, error) {
	n := 0
	for _, key := range keys {
		p, err := s.path(key)
		if err != nil {
			return n, err
		}
		err = os.Remove(p)
		switch {
		case err == nil:
			n++
		case !errors.Is(err, fs.ErrNotExist):
			return n, fmt.Errorf("dircache: delete artifact: %w", err)
		}
		if err := os.Remove(p + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("dircache: delete metadata: %w", err)
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }

// Health reports whether the cache root is still a directory.
func (s *Store) Health(_ context.Context) component.Health {
	info, err := os.Stat(s.root)
	if err != nil {
		return component.Health{Name: "dircache", Status: component.StatusUnhealthy, Message: err.Error()}
	}
	if !info.IsDir() {
		return component.Health{Name: "dircache", Status: component.StatusUnhealthy, Message: s.root + " is not a directory"}
	}
	return component.Health{Name: "dircache", Status: component.StatusHealthy}
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("dircache: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("dircache: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dircache: close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("dircache: rename file: %w", err)
	}
	return nil
}

var _ artifactcache.BlobStore = (*Store)(nil)
