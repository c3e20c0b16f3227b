package dircache

import "fmt"

// DefaultPath is the default cache directory, relative to the working
// directory.
const DefaultPath = ".buildgraph/cache"

// Config holds directory cache configuration.
type Config struct {
	// Path is the root directory of the cache.
	Path string `mapstructure:"path" json:"path"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
}

// Validate checks that the directory configuration is valid.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("dircache: path is required")
	}
	return nil
}
