package config

// FlightsConfig configures the flight search client.
type FlightsConfig struct {
	// BaseURL of the flight search API. Empty enables fixture mode, which
	// serves deterministic offline results.
	BaseURL string `yaml:"base_url"`

	APIKey string `yaml:"api_key"`
}

// PromptsConfig points at the system prompt file watched for changes.
type PromptsConfig struct {
	// SystemPromptPath is the file holding the system prompt. Empty means
	// the built-in default prompt.
	SystemPromptPath string `yaml:"system_prompt_path"`
}
