package splitz

import "github.com/matt-riley/splitz/internal/config"

// Config holds the SDK's runtime configuration. See [LoadConfig] for the
// YAML keys and SPLITZ_* environment overrides.
type Config = config.Config

// LoadConfig reads an optional YAML file, applies SPLITZ_* environment
// overrides and defaults, and validates the result. An empty path loads
// from the environment alone.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}
