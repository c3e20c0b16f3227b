// Package config loads buildgraph configuration.
//
// LoadConfig uses Viper to read a YAML config file (buildgraph.yml in the
// workspace or its config directory), then a .env file via godotenv, then
// environment variables and finally bound command-line flags. Environment
// variables use the BUILDGRAPH_ prefix with underscore-separated paths
// (e.g., BUILDGRAPH_CACHE_REDIS_ADDRS).
//
//	cfg, err := config.Load(
//	    config.WithConfigFile(path),
//	    config.WithFlag("parser.root", flags.Lookup("root")),
//	)
package config
