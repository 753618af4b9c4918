package config

import "time"

// LLMConfig defines the LLM provider used by every analyst agent.
type LLMConfig struct {
	Type LLMProviderType `yaml:"type"`

	// Model is the default model; agents may override it.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// BaseURL points at a custom or compatible endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIVersion is required for azure-openai.
	APIVersion string `yaml:"api_version,omitempty"`

	// RequestTimeout bounds a single completion request.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// MaxToolResultChars truncates tool output before it is fed back to the model.
	MaxToolResultChars int `yaml:"max_tool_result_chars,omitempty"`
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Type:               LLMProviderTypeOpenAI,
		Model:              "gpt-5-nano",
		APIKeyEnv:          "OPENAI_API_KEY",
		RequestTimeout:     5 * time.Minute,
		MaxToolResultChars: 60000,
	}
}
