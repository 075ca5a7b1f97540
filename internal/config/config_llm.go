package config

import "fmt"

// LLMConfig selects the inference provider and model.
type LLMConfig struct {
	// Provider is "anthropic" or "openai".
	Provider string `yaml:"provider"`

	// Model is the model ID sent with every request. Empty uses the
	// provider's default.
	Model string `yaml:"model"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// MaxTokens caps each completion. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens"`
}

func (c *LLMConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
}

func (c *LLMConfig) validate() error {
	switch c.Provider {
	case "anthropic", "openai":
		return nil
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
}
