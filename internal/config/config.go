// Package config loads server settings from the environment and resource
// definitions from YAML.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RESOURCEFUL"

// Server holds the serve command defaults. Command-line flags override them.
type Server struct {
	Addr         string        `envconfig:"ADDR" default:":8080"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"10s"`
	Pretty       bool          `envconfig:"PRETTY" default:"false"`
	MaxBodyBytes int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`

	// Telemetry; an empty endpoint disables tracing.
	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`
	OTelService  string `envconfig:"OTEL_SERVICE" default:"resourceful"`

	ResourcesFile string `envconfig:"RESOURCES_FILE" default:"resources.yaml"`
}

// Load reads Server from RESOURCEFUL_* environment variables.
func Load() (*Server, error) {
	var c Server
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// Validate checks the values a server cannot start with.
func (c *Server) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: %s_ADDR must not be empty", EnvPrefix)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: %s_TIMEOUT must not be negative", EnvPrefix)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("config: %s_MAX_BODY_BYTES must not be negative", EnvPrefix)
	}
	if c.ResourcesFile == "" {
		return fmt.Errorf("config: a resources file is required")
	}
	return nil
}
