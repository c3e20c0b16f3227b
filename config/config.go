package config

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/artifactcache/dircache"
	"github.com/kbukum/buildgraph/artifactcache/rediscache"
	"github.com/kbukum/buildgraph/artifactcache/s3cache"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/observability"
	"github.com/kbukum/buildgraph/parser"
	"github.com/kbukum/buildgraph/validation"
)

// Name is the application name used to find config files and as the
// environment variable prefix.
const Name = "buildgraph"

// Config is the complete buildgraph configuration.
//
//	name: buildgraph
//	logging:
//	  level: info
//	parser:
//	  root: .
//	  build_file_name: BUILD.yaml
//	engine:
//	  parallelism: 8
//	cache:
//	  mode: redis
//	  max_fetch_retries: 3
//	  redis:
//	    addrs: ["cache-1:6379", "cache-2:6379"]
type Config struct {
	Name          string               `yaml:"name" mapstructure:"name"`
	Environment   string               `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development ci production"`
	Logging       logger.Config        `yaml:"logging" mapstructure:"logging"`
	Parser        parser.Config        `yaml:"parser" mapstructure:"parser"`
	Engine        EngineConfig         `yaml:"engine" mapstructure:"engine"`
	Cache         CacheConfig          `yaml:"cache" mapstructure:"cache"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// EngineConfig configures the computation engine.
type EngineConfig struct {
	// Parallelism bounds concurrently running computation callbacks. Zero
	// means unbounded.
	Parallelism int `yaml:"parallelism" mapstructure:"parallelism" validate:"gte=0"`
}

// CacheConfig holds the shared cache settings and one section per backend.
type CacheConfig struct {
	artifactcache.Config `yaml:",inline" mapstructure:",squash"`

	// Backend sections are validated only when selected.
	Dir   dircache.Config   `yaml:"dir" mapstructure:"dir" validate:"-"`
	Redis rediscache.Config `yaml:"redis" mapstructure:"redis" validate:"-"`
	S3    s3cache.Config    `yaml:"s3" mapstructure:"s3" validate:"-"`
}

// ProviderConfig returns the backend section selected by Mode, or nil for
// backends without one.
func (c *CacheConfig) ProviderConfig() any {
	switch c.Mode {
	case artifactcache.ModeDir:
		return &c.Dir
	case artifactcache.ModeRedis:
		return &c.Redis
	case artifactcache.ModeS3:
		return &c.S3
	default:
		return nil
	}
}

// ApplyDefaults fills unset fields in every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = Name
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	c.Logging.ApplyDefaults()
	c.Parser.ApplyDefaults()
	c.Cache.ApplyDefaults()
	switch c.Cache.Mode {
	case artifactcache.ModeDir:
		c.Cache.Dir.ApplyDefaults()
	case artifactcache.ModeRedis:
		c.Cache.Redis.ApplyDefaults()
	case artifactcache.ModeS3:
		c.Cache.S3.ApplyDefaults()
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = c.Name
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = c.Environment
	}
	c.Observability.ApplyDefaults()
}

// Validate checks every section. Only the backend selected by cache.mode is
// validated. All problems are reported together.
func (c *Config) Validate() error {
	err := validation.Validate(c)
	if lerr := c.Logging.Validate(); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("config.logging: %w", lerr))
	}

	var backend error
	switch c.Cache.Mode {
	case artifactcache.ModeDir:
		backend = c.Cache.Dir.Validate()
	case artifactcache.ModeRedis:
		backend = c.Cache.Redis.Validate()
	case artifactcache.ModeS3:
		backend = c.Cache.S3.Validate()
	}
	if backend != nil {
		err = multierr.Append(err, fmt.Errorf("config.cache.%s: %w", c.Cache.Mode, backend))
	}
	return err
}

// Load reads, defaults and validates the configuration.
func Load(opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := LoadConfig(Name, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
