package config

import "fmt"

// SessionsConfig selects the conversation store backend.
type SessionsConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Ignored for the memory backend.
	Path string `yaml:"path"`
}

func (c *SessionsConfig) applyDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "concierge.db"
	}
}

func (c *SessionsConfig) validate() error {
	switch c.Backend {
	case "memory", "sqlite":
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
}
