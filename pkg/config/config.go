package config

import (
	"fmt"

	"github.com/perchsocial/perch/pkg/observability"
)

// Config is the root configuration for the Perch backend.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Logger configures process logging.
	Logger LoggerConfig `yaml:"logger,omitempty" json:"logger,omitempty"`

	// Databases defines named database connections.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty"`

	// Database names the entry in Databases used for application storage.
	// Defaults to "main", or the sole entry when exactly one is defined.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// Auth configures password hashing and tokens.
	Auth AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`

	// Media configures uploaded-file storage.
	Media MediaConfig `yaml:"media,omitempty" json:"media,omitempty"`

	// RateLimit configures request rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limiting,omitempty" json:"rate_limiting,omitempty"`

	// Observability configures tracing and metrics.
	Observability *observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// ProcessConfigPipeline normalizes and checks a decoded config:
// defaults first, then validation.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: config cannot be nil")
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: validation failed: %w", err)
	}

	return cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
	if len(c.Databases) == 0 {
		c.Databases["main"] = &DatabaseConfig{
			Driver:   "sqlite",
			Database: "perch.db",
		}
	}
	if c.Database == "" {
		if _, ok := c.Databases["main"]; ok {
			c.Database = "main"
		} else if len(c.Databases) == 1 {
			for name := range c.Databases {
				c.Database = name
			}
		}
	}

	c.Server.SetDefaults()
	c.Logger.SetDefaults()
	c.Auth.SetDefaults()
	c.Media.SetDefaults()
	c.RateLimit.SetDefaults()

	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}

	if c.Observability != nil {
		c.Observability.SetDefaults()
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger validation failed: %w", err)
	}

	for name, db := range c.Databases {
		if db != nil {
			if err := db.Validate(); err != nil {
				return fmt.Errorf("database '%s' validation failed: %w", name, err)
			}
		}
	}

	if c.Database == "" {
		return fmt.Errorf("database selector is required when multiple databases are defined")
	}
	if _, ok := c.Databases[c.Database]; !ok {
		return fmt.Errorf("database %q is not defined in databases", c.Database)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if err := c.Media.Validate(); err != nil {
		return fmt.Errorf("media validation failed: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limiting validation failed: %w", err)
	}

	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability validation failed: %w", err)
		}
	}

	return nil
}

// MainDatabase returns the database config selected by the Database field.
func (c *Config) MainDatabase() *DatabaseConfig {
	return c.Databases[c.Database]
}
