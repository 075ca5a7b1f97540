package config

import "fmt"

// AgentConfig tunes the conversation runtime.
type AgentConfig struct {
	// MaxToolRounds bounds inference/execution cycles per turn.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// ResolveConcurrency bounds parallel approved-call execution.
	ResolveConcurrency int `yaml:"resolve_concurrency"`
}

func (c *AgentConfig) applyDefaults() {
	if c.MaxToolRounds == 0 {
		c.MaxToolRounds = 10
	}
	if c.ResolveConcurrency == 0 {
		c.ResolveConcurrency = 5
	}
}

func (c *AgentConfig) validate() error {
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("max_tool_rounds must be positive, got %d", c.MaxToolRounds)
	}
	if c.ResolveConcurrency < 1 {
		return fmt.Errorf("resolve_concurrency must be positive, got %d", c.ResolveConcurrency)
	}
	return nil
}
