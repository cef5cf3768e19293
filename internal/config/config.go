// Package config provides configuration loading for the batch agent.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Load overlays environment variables onto the provided struct. Fields whose
// variables are unset keep their current values.
func Load(prefix string, cfg interface{}) error {
	if err := envconfig.Process(prefix, cfg); err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	return nil
}
