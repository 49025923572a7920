package llm

import (
	"os"
	"strings"
)

// Descriptor describes one configured provider. It is immutable once built;
// a changed descriptor produces a new provider instance.
type Descriptor struct {
	Name         string   `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Type         string   `json:"type,omitempty" yaml:"type" mapstructure:"type"`
	Kind         Kind     `json:"kind" yaml:"kind" mapstructure:"kind" validate:"required,oneof=llm image embedding"`
	Models       []string `json:"models,omitempty" yaml:"models" mapstructure:"models"`
	DefaultModel string   `json:"default_model" yaml:"default_model" mapstructure:"default_model" validate:"required"`
	APIKey       string   `json:"-" yaml:"-" mapstructure:"api_key"`
	APIKeyEnv    string   `json:"api_key_env,omitempty" yaml:"api_key_env" mapstructure:"api_key_env"`
	BaseURL      string   `json:"base_url,omitempty" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Enabled      bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Priority     int      `json:"priority" yaml:"priority" mapstructure:"priority"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens" mapstructure:"max_tokens"`
	// KeyOptional marks local providers that work without credentials.
	KeyOptional bool `json:"key_optional,omitempty" yaml:"key_optional" mapstructure:"key_optional"`
}

// FactoryType returns the registered factory type, defaulting to the name.
func (d Descriptor) FactoryType() string {
	if d.Type != "" {
		return d.Type
	}
	return d.Name
}

// Usable reports whether the provider can be built: enabled and credentialed.
func (d Descriptor) Usable() bool {
	return d.Enabled && (d.APIKey != "" || d.KeyOptional)
}

// HasModel reports whether model is advertised (or no list is advertised).
func (d Descriptor) HasModel(model string) bool {
	if len(d.Models) == 0 || model == d.DefaultModel {
		return true
	}
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// apiKeyEnvVars maps well-known provider names to the environment variable
// holding their credential.
var apiKeyEnvVars = map[string]string{
	"anthropic":    "ANTHROPIC_API_KEY",
	"openai":       "OPENAI_API_KEY",
	"openai-dalle": "OPENAI_API_KEY",
	"deepseek":     "DEEPSEEK_API_KEY",
	"google":       "GOOGLE_AI_API_KEY",
	"groq":         "GROQ_API_KEY",
	"openrouter":   "OPENROUTER_API_KEY",
	"stability":    "STABILITY_API_KEY",
	"replicate":    "REPLICATE_API_TOKEN",
	"leonardo":     "LEONARDO_API_KEY",
	"voyage":       "VOYAGE_API_KEY",
}

// baseURLEnvVars maps providers whose endpoint, not key, comes from the environment.
var baseURLEnvVars = map[string]string{
	"ollama": "OLLAMA_BASE_URL",
}

// KeyEnvVar returns the environment variable for a provider's credential.
func KeyEnvVar(d Descriptor) string {
	if v, ok := apiKeyEnvVars[d.Name]; ok {
		return v
	}
	return d.APIKeyEnv
}

// ResolveCredentials fills the API key and base URL from the environment.
// Keys are never read from configuration documents, only the name of the
// variable holding them. An explicit "ENV:NAME" key is resolved as well.
func ResolveCredentials(d Descriptor, getenv func(string) string) Descriptor {
	if getenv == nil {
		getenv = os.Getenv
	}
	if envVar, ok := strings.CutPrefix(d.APIKey, "ENV:"); ok {
		d.APIKey = getenv(envVar)
	}
	if d.APIKey == "" {
		if envVar := KeyEnvVar(d); envVar != "" {
			d.APIKey = getenv(envVar)
		}
	}
	if envVar, ok := baseURLEnvVars[d.Name]; ok {
		if v := getenv(envVar); v != "" {
			d.BaseURL = v
		}
	}
	return d
}
