package artifactcache

import (
	"context"
	"maps"
	"sync"

	"github.com/kbukum/buildgraph/logger"
)

// MemoryStore is a BlobStore held in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[RuleKey]Blob
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[RuleKey]Blob)}
}

func (s *MemoryStore) Get(_ context.Context, key RuleKey) (Blob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	return b, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key RuleKey, blob Blob) error {
	data := make([]byte, len(blob.Data))
	copy(data, blob.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = Blob{Data: data, Metadata: maps.Clone(blob.Metadata)}
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, keys []RuleKey) (map[RuleKey]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[RuleKey]bool, len(keys))
	for _, k := range keys {
		_, out[k] = s.blobs[k]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys []RuleKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := s.blobs[k]; ok {
			delete(s.blobs, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }

// NewMemoryCache returns a BlobCache over a fresh MemoryStore.
func NewMemoryCache(readMode ReadMode, log *logger.Logger) *BlobCache {
	return NewBlobCache(string(ModeMemory), readMode, NewMemoryStore(), log)
}
