package artifactcache

import (
	"fmt"
	"sync"

	"github.com/kbukum/buildgraph/logger"
)

// Factory creates a backend from the common config and the backend's own
// config. Each backend type-asserts providerCfg to its config type.
type Factory func(cfg Config, providerCfg any, log *logger.Logger) (ArtifactCache, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[Mode]Factory)
)

func init() {
	RegisterFactory(ModeMemory, func(cfg Config, _ any, log *logger.Logger) (ArtifactCache, error) {
		return NewMemoryCache(cfg.ReadMode, log), nil
	})
	RegisterFactory(ModeNone, func(Config, any, *logger.Logger) (ArtifactCache, error) {
		return NoopCache{}, nil
	})
}

// RegisterFactory registers the backend factory for mode. Backend packages
// call it from init, so importing a backend package makes its mode
// available to New.
func RegisterFactory(mode Mode, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[mode] = f
}

// NewBackend creates the bare backend selected by cfg.Mode.
func NewBackend(cfg Config, providerCfg any, log *logger.Logger) (ArtifactCache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factoriesMu.RLock()
	f, ok := factories[cfg.Mode]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("artifactcache: unsupported mode %q (not registered)", cfg.Mode)
	}

	l := logger.OrGlobal(log).WithComponent("artifactcache")
	l.Info("initializing artifact cache", map[string]interface{}{
		logger.FieldCacheMode: string(cfg.Mode),
		"read_mode":           string(cfg.ReadMode),
	})
	return f(cfg, providerCfg, l)
}

// New creates the backend selected by cfg.Mode wrapped in a RetryingCache.
// Mode none is returned unwrapped.
func New(cfg Config, providerCfg any, bus EventBus, log *logger.Logger, opts ...RetryOption) (ArtifactCache, error) {
	cfg.ApplyDefaults()
	backend, err := NewBackend(cfg, providerCfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == ModeNone {
		return backend, nil
	}

	opts = append([]RetryOption{WithRetryBackoff(cfg.RetryBackoff), WithRetryLogger(log)}, opts...)
	retrying, err := NewRetryingCache(cfg.Mode, backend, cfg.MaxFetchRetries, bus, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return retrying, nil
}
