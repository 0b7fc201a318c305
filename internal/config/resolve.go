package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nugget/tubedigest/internal/prompts"
)

// Fallback generation settings for models missing from the table.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.3
)

// Summary defaults.
const (
	DefaultModel              = "google/gemini-2.5-flash"
	DefaultChronologicalModel = "qwen/qwen-turbo"
	DefaultMaxRetries         = 3
)

// Lookup errors.
var (
	ErrUnknownTemplate = errors.New("unknown prompt template")
	ErrUnknownProvider = errors.New("unknown provider")
)

// ModelParams returns the generation settings for a model. An unknown
// model gets {MaxTokens: 4096, Temperature: 0.3}; this is not an error.
// A listed model with zero MaxTokens also takes the default.
func (c *Config) ModelParams(model string) ModelParameters {
	p, ok := c.Models[model]
	if !ok {
		return ModelParameters{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature}
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	return p
}

// Template returns the named prompt template. Unknown names fail with
// ErrUnknownTemplate.
func (c *Config) Template(name string) (prompts.Template, error) {
	t, ok := c.Templates[name]
	if !ok {
		return prompts.Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	t.Name = name
	t.ToneInstructions = append([]string(nil), t.ToneInstructions...)
	t.OutputInstructions = append([]string(nil), t.OutputInstructions...)
	return t, nil
}

// Provider returns the named provider's settings.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// ProviderFor returns the provider name serving a model.
func (c *Config) ProviderFor(model string) string {
	if p, ok := c.Models[model]; ok && p.Provider != "" {
		return p.Provider
	}
	return c.Summary.DefaultProvider
}

// Pricing returns the per-model pricing table for cost accounting.
func (c *Config) Pricing() map[string]PricingEntry {
	out := make(map[string]PricingEntry, len(c.Models))
	for name, m := range c.Models {
		if m.Pricing != (PricingEntry{}) {
			out[name] = m.Pricing
		}
	}
	return out
}

// Default returns the built-in configuration: OpenRouter, Gemini,
// Anthropic and Ollama providers, the known model table and the built-in
// prompt templates. API keys come from the environment.
func Default() *Config {
	cfg := builtin()
	cfg.applyDefaults()
	return cfg
}

// builtin is Default before zero-value defaults are applied, so a file
// that sets data_dir still moves the paths derived from it.
func builtin() *Config {
	return &Config{
		Providers: builtinProviders(),
		Models: map[string]ModelParameters{
			"google/gemini-2.5-flash": {
				MaxTokens: 8192, Temperature: 0.3, Provider: "openrouter",
				Description:      "Fast, inexpensive; good default for insight summaries",
				MaxContentLength: 1000000,
				Pricing:          PricingEntry{InputPerMillion: 0.30, OutputPerMillion: 2.50},
			},
			"google/gemini-2.5-pro": {
				MaxTokens: 8192, Temperature: 0.3, Provider: "openrouter",
				Description:      "Strongest Gemini; slower and more expensive",
				MaxContentLength: 1000000,
				Pricing:          PricingEntry{InputPerMillion: 1.25, OutputPerMillion: 10.00},
			},
			"qwen/qwen-turbo": {
				MaxTokens: 4096, Temperature: 0.3, Provider: "openrouter",
				Description:      "Cheap and quick; used for chronological parts",
				MaxContentLength: 1000000,
				Pricing:          PricingEntry{InputPerMillion: 0.05, OutputPerMillion: 0.20},
			},
			"anthropic/claude-sonnet-4": {
				MaxTokens: 8192, Temperature: 0.3, Provider: "openrouter",
				Description:      "High quality prose, higher cost",
				MaxContentLength: 200000,
				Pricing:          PricingEntry{InputPerMillion: 3.00, OutputPerMillion: 15.00},
			},
			"gemini-2.5-flash": {
				MaxTokens: 8192, Temperature: 0.3, Provider: "gemini",
				Description:      "Gemini direct, bypassing OpenRouter",
				MaxContentLength: 1000000,
			},
		},
		Templates: prompts.Builtin(),
	}
}

// builtinProviders returns the endpoints known out of the box. A config
// file entry with the same name inherits any field it leaves empty.
func builtinProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openrouter": {
			Kind:       KindOpenAI,
			BaseURL:    "https://openrouter.ai/api/v1",
			APIKey:     os.Getenv("OPENROUTER_API_KEY"),
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			Headers: map[string]string{
				"HTTP-Referer": "https://github.com/nugget/tubedigest",
				"X-Title":      "tubedigest",
			},
		},
		"gemini": {
			Kind:       KindOpenAI,
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta/openai",
			APIKey:     os.Getenv("GEMINI_API_KEY"),
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		},
		"anthropic": {
			Kind:    KindAnthropic,
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			Timeout: 120 * time.Second,
		},
		"ollama": {
			Kind:    KindOllama,
			BaseURL: "http://localhost:11434",
			Timeout: 5 * time.Minute,
		},
	}
}
