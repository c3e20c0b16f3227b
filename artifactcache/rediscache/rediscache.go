// Package rediscache is an artifact cache backend on Redis. Each artifact is
// a hash holding the bytes and their JSON metadata under
// "<prefix>:<rule key>".
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/component"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/resilience"
)

const (
	fieldData = "data"
	fieldMeta = "meta"
)

func init() {
	artifactcache.RegisterFactory(artifactcache.ModeRedis, func(cfg artifactcache.Config, providerCfg any, log *logger.Logger) (artifactcache.ArtifactCache, error) {
		c := &Config{}
		if providerCfg != nil {
			pc, ok := providerCfg.(*Config)
			if !ok {
				return nil, fmt.Errorf("rediscache: expected *rediscache.Config, got %T", providerCfg)
			}
			c = pc
		}
		return NewCache(cfg.ReadMode, c, log)
	})
}

// NewCache builds the cache described by cfg: a single BlobCache for one
// address, a Balanced pool of them for several.
func NewCache(readMode artifactcache.ReadMode, cfg *Config, log *logger.Logger) (artifactcache.ArtifactCache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrGlobal(log).WithComponent("rediscache")

	if len(cfg.Addrs) == 1 {
		store := NewStore(NewClient(*cfg, cfg.Addrs[0], log), cfg.KeyPrefix, duration(cfg.TTL))
		return artifactcache.NewBlobCache(string(artifactcache.ModeRedis), readMode, store, log), nil
	}

	members := make(map[string]artifactcache.ArtifactCache, len(cfg.Addrs))
	for _, addr := range cfg.Addrs {
		name := "redis:" + addr
		store := NewStore(NewClient(*cfg, addr, log), cfg.KeyPrefix, duration(cfg.TTL))
		members[name] = artifactcache.NewBlobCache(name, readMode, store, log)
	}
	return artifactcache.NewBalanced(string(artifactcache.ModeRedis), members, resilience.CircuitBreakerConfig{
		MaxFailures:      cfg.BreakerFailures,
		Timeout:          duration(cfg.BreakerTimeout),
		HalfOpenMaxCalls: 1,
	}, log)
}

// Store implements artifactcache.BlobStore on one Redis server.
type Store struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

// NewStore creates a Store. A zero ttl keeps artifacts forever.
func NewStore(client *Client, keyPrefix string, ttl time.Duration) *Store {
	return &Store{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *Store) fullKey(key artifactcache.RuleKey) string {
	if s.keyPrefix == "" {
		return string(key)
	}
	return s.keyPrefix + ":" + string(key)
}

func (s *Store) Get(ctx context.Context, key artifactcache.RuleKey) (artifactcache.Blob, bool, error) {
	fields, err := s.client.Unwrap().HGetAll(ctx, s.fullKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return artifactcache.Blob{}, false, nil
		}
		return artifactcache.Blob{}, false, fmt.Errorf("rediscache get %q: %w", key, err)
	}
	data, ok := fields[fieldData]
	if !ok {
		return artifactcache.Blob{}, false, nil
	}

	var meta map[string]string
	if raw := fields[fieldMeta]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return artifactcache.Blob{}, false, fmt.Errorf("rediscache unmarshal %q: %w", key, err)
		}
	}
	return artifactcache.Blob{Data: []byte(data), Metadata: meta}, true, nil
}

func (s *Store) Put(ctx context.Context, key artifactcache.RuleKey, blob artifactcache.Blob) error {
	meta, err := json.Marshal(blob.Metadata)
	if err != nil {
		return fmt.Errorf("rediscache marshal %q: %w", key, err)
	}

	k := s.fullKey(key)
	_, err = s.client.Unwrap().TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, k, fieldData, blob.Data, fieldMeta, string(meta))
		if s.ttl > 0 {
			p.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rediscache put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, keys []artifactcache.RuleKey) (map[artifactcache.RuleKey]bool, error) {
	cmds := make([]*goredis.IntCmd, len(keys))
	_, err := s.client.Unwrap().Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.Exists(ctx, s.fullKey(key))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rediscache exists: %w", err)
	}
	out := make(map[artifactcache.RuleKey]bool, len(keys))
	for i, key := range keys {
		out[key] = cmds[i].Val() > 0
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, keys []artifactcache.RuleKey) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.fullKey(key)
	}
	n, err := s.client.Unwrap().Del(ctx, full...).Result()
	if err != nil {
		return 0, fmt.Errorf("rediscache delete: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error { return s.client.Close() }

// Health pings the server.
func (s *Store) Health(ctx context.Context) component.Health {
	name := "redis:" + s.client.Addr()
	if err := s.client.Ping(ctx); err != nil {
		return component.Health{
			Name:    name,
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return component.Health{Name: name, Status: component.StatusHealthy}
}

var _ artifactcache.BlobStore = (*Store)(nil)
