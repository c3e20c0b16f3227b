package rediscache

import (
	"time"

	"github.com/kbukum/buildgraph/validation"
)

// Default configuration values.
const (
	DefaultKeyPrefix   = "buildgraph:artifact"
	DefaultPoolSize    = 10
	DefaultMaxFailures = 5
)

// Config holds Redis artifact cache configuration.
type Config struct {
	// Addrs lists the Redis servers (host:port). More than one address
	// builds a balanced pool.
	Addrs []string `mapstructure:"addrs" validate:"min=1,dive,hostname_port"`

	// Password is the Redis server password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"gte=0"`

	// PoolSize is the maximum number of socket connections per server.
	PoolSize int `mapstructure:"pool_size" validate:"gte=1"`

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int `mapstructure:"min_idle_conns"`

	// MaxRetries is the go-redis command retry count (0 = default 3, -1
	// disables retries).
	MaxRetries int `mapstructure:"max_retries"`

	// DialTimeout is the timeout for establishing new connections (e.g. "5s").
	DialTimeout string `mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads (e.g. "3s").
	ReadTimeout string `mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes (e.g. "3s").
	WriteTimeout string `mapstructure:"write_timeout"`

	// KeyPrefix is prepended to every rule key.
	KeyPrefix string `mapstructure:"key_prefix"`

	// TTL expires stored artifacts (e.g. "168h"). Empty keeps them forever.
	TTL string `mapstructure:"ttl"`

	// BreakerFailures opens a server's circuit after this many consecutive
	// failures. Only used with several addresses.
	BreakerFailures int `mapstructure:"breaker_failures"`

	// BreakerTimeout is how long an open circuit stays open (e.g. "30s").
	BreakerTimeout string `mapstructure:"breaker_timeout"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = DefaultMaxFailures
	}
	if c.BreakerTimeout == "" {
		c.BreakerTimeout = "30s"
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	v := validation.New()
	v.Merge("", validation.Validate(c))
	durations := []struct{ field, value string }{
		{"dial_timeout", c.DialTimeout},
		{"read_timeout", c.ReadTimeout},
		{"write_timeout", c.WriteTimeout},
		{"ttl", c.TTL},
		{"breaker_timeout", c.BreakerTimeout},
	}
	for _, d := range durations {
		_, err := time.ParseDuration(d.value)
		v.Custom(d.value == "" || err == nil, d.field, "must be a duration such as 3s")
	}
	return v.Error()
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
