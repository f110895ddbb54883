package models

// LLMBackend identifies the provider implementation behind a binding.
type LLMBackend string

const (
	BackendAnthropic LLMBackend = "anthropic"
)

// LLMBinding binds a scene (or an explicit request) to a concrete model
// endpoint. Bindings are config-family records, last-writer-wins.
type LLMBinding struct {
	ID          string     `json:"id" yaml:"id"`
	Scene       Scene      `json:"scene,omitempty" yaml:"scene,omitempty"`
	Backend     LLMBackend `json:"backend" yaml:"backend"`
	Model       string     `json:"model" yaml:"model"`
	APIKeyEnv   string     `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Temperature *float64   `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	IsDefault   bool       `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}
