package artifactcache

import (
	"time"

	"github.com/kbukum/buildgraph/validation"
)

// Default configuration values.
const (
	DefaultMode            = ModeDir
	DefaultReadMode        = ReadWrite
	DefaultMaxFetchRetries = 3
)

// Config holds the backend-independent cache settings.
type Config struct {
	// Mode selects the backend: dir, redis, s3, memory or none.
	Mode Mode `mapstructure:"mode" validate:"oneof=dir redis s3 memory none"`

	// ReadMode is readwrite or readonly.
	ReadMode ReadMode `mapstructure:"read_mode" validate:"oneof=readwrite readonly"`

	// MaxFetchRetries is the total number of attempts per fetch.
	MaxFetchRetries int `mapstructure:"max_fetch_retries" validate:"gte=1"`

	// RetryBackoff is the wait before the second fetch attempt. Zero
	// re-issues immediately.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.ReadMode == "" {
		c.ReadMode = DefaultReadMode
	}
	if c.MaxFetchRetries == 0 {
		c.MaxFetchRetries = DefaultMaxFetchRetries
	}
}

// Validate checks the settings.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
