// Package config defines the one configuration tree for the process and
// the loaders that fill it from a file, Consul, etcd, or ZooKeeper.
// Component packages own their sub-structs; this package only composes
// them, applies defaults, and validates the whole.
package config

import (
	"fmt"
	"time"

	"github.com/periplo-ai/periplo/pkg/agent"
	"github.com/periplo-ai/periplo/pkg/collect"
	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/model"
	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/ratelimit"
	"github.com/periplo-ai/periplo/pkg/server"
	"github.com/periplo-ai/periplo/pkg/session"
	"github.com/periplo-ai/periplo/pkg/upstream/amap"
	"github.com/periplo-ai/periplo/pkg/upstream/qweather"
)

// Config is the root of the configuration tree.
type Config struct {
	// Region names the metro area this deployment serves. Required in
	// file configs; Default() fills in the bundled region.
	Region string `yaml:"region" json:"region" jsonschema:"required"`

	// DefaultDays is assumed when an utterance names no duration;
	// MaxDays caps what an utterance may ask for.
	DefaultDays int `yaml:"default_days" json:"default_days,omitempty" jsonschema:"minimum=1,default=1"`
	MaxDays     int `yaml:"max_days" json:"max_days,omitempty" jsonschema:"minimum=1,default=7"`

	// PerCallTimeout bounds one upstream fetch; HintsTimeout is the
	// shorter clock for input-hint lookups.
	PerCallTimeout time.Duration `yaml:"per_call_timeout" json:"per_call_timeout,omitempty"`
	HintsTimeout   time.Duration `yaml:"hints_timeout" json:"hints_timeout,omitempty"`

	// RequestTimeout bounds one handled request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout,omitempty"`

	// MaxHistoryTurns is the per-user session tail kept in memory.
	MaxHistoryTurns int `yaml:"max_history_turns" json:"max_history_turns,omitempty" jsonschema:"default=10"`

	// MaxConcurrentRequestsPerUser serialises a user's requests.
	MaxConcurrentRequestsPerUser int `yaml:"max_concurrent_requests_per_user" json:"max_concurrent_requests_per_user,omitempty" jsonschema:"default=1"`

	Model         model.Config         `yaml:"model" json:"model,omitempty"`
	Amap          amap.Config          `yaml:"amap" json:"amap,omitempty"`
	QWeather      qweather.Config      `yaml:"qweather" json:"qweather,omitempty"`
	RateLimit     ratelimit.Config     `yaml:"ratelimit" json:"ratelimit,omitempty"`
	Server        server.Config        `yaml:"server" json:"server,omitempty"`
	Observability observability.Config `yaml:"observability" json:"observability,omitempty"`

	// Gazetteer overrides the bundled location vocabulary. Its region
	// should match Region.
	Gazetteer *extract.Gazetteer `yaml:"gazetteer" json:"gazetteer,omitempty"`
}

// Default returns a ready-to-run config for the bundled region, used by
// the CLI when no file is given. Vendor keys still come from the
// environment.
func Default() *Config {
	cfg := &Config{Region: "Lisbon"}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields, recursing into every sub-config.
func (c *Config) SetDefaults() {
	if c.DefaultDays <= 0 {
		c.DefaultDays = 1
	}
	if c.MaxDays <= 0 {
		c.MaxDays = 7
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = collect.DefaultSpecTimeout
	}
	if c.HintsTimeout <= 0 {
		c.HintsTimeout = collect.HintsSpecTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = agent.DefaultRequestTimeout
	}
	if c.MaxHistoryTurns <= 0 {
		c.MaxHistoryTurns = session.DefaultMaxTurns
	}
	if c.MaxConcurrentRequestsPerUser <= 0 {
		c.MaxConcurrentRequestsPerUser = agent.DefaultMaxPerUser
	}

	c.Model.SetDefaults()
	c.Amap.SetDefaults()
	c.QWeather.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Server.SetDefaults()
	c.Observability.SetDefaults()

	if c.Gazetteer == nil {
		c.Gazetteer = extract.DefaultGazetteer()
		if c.Region != "" {
			c.Gazetteer.Region = c.Region
		}
	}
}

// Validate rejects configs that cannot run. Vendor sections are checked
// only when their key is set; a missing key just leaves that provider
// unwired and the dispatcher degrades.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.MaxDays < c.DefaultDays {
		return fmt.Errorf("max_days (%d) must be at least default_days (%d)", c.MaxDays, c.DefaultDays)
	}
	if c.HintsTimeout > c.PerCallTimeout {
		return fmt.Errorf("hints_timeout (%s) must not exceed per_call_timeout (%s)", c.HintsTimeout, c.PerCallTimeout)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	if c.Amap.Key != "" {
		if err := c.Amap.Validate(); err != nil {
			return err
		}
	}
	if c.QWeather.Key != "" {
		if err := c.QWeather.Validate(); err != nil {
			return err
		}
	}
	if c.Gazetteer != nil {
		if err := c.Gazetteer.Validate(); err != nil {
			return fmt.Errorf("gazetteer: %w", err)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	return nil
}

// Finalize runs the full pipeline on a freshly decoded config.
func Finalize(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
