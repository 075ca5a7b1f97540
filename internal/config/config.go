// Package config loads and validates the service configuration: a YAML
// (or JSON5) struct tree with $include resolution, environment variable
// expansion, and strict decoding. Each concern keeps its section in its
// own file.
package config

import (
	"fmt"

	"github.com/haasonsaas/concierge/internal/mcp"
)

// Config is the root configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Sessions SessionsConfig `yaml:"sessions"`
	Prompts  PromptsConfig  `yaml:"prompts"`
	Flights  FlightsConfig  `yaml:"flights"`
	Schedule ScheduleConfig `yaml:"schedule"`
	MCP      mcp.Config     `yaml:"mcp"`
}

// Load reads, merges, and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	c.Server.applyDefaults()
	c.Logging.applyDefaults()
	c.LLM.applyDefaults()
	c.Agent.applyDefaults()
	c.Sessions.applyDefaults()
	c.Schedule.applyDefaults()
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if err := ValidateVersion(c.Version); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.LLM.validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Sessions.validate(); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if err := c.Agent.validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	for i := range c.MCP.Servers {
		if err := c.MCP.Servers[i].Validate(); err != nil {
			return fmt.Errorf("mcp server %d: %w", i, err)
		}
	}
	return nil
}
