// Package config handles tubedigest configuration loading and the
// lookups that turn model, template and provider names into settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/tubedigest/internal/paths"
	"github.com/nugget/tubedigest/internal/prompts"
)

// DefaultSearchPaths returns the config file search order:
// ./tubedigest.yaml, ~/.config/tubedigest/config.yaml,
// /etc/tubedigest/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"tubedigest.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tubedigest", "config.yaml"))
	}

	paths = append(paths, "/etc/tubedigest/config.yaml")
	return paths
}

// ErrNoConfig is returned by FindConfig when no file exists on the search
// path. Callers may fall back to Default.
var ErrNoConfig = errors.New("no config file found")

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

// Config holds all tubedigest configuration. It is built once by Load or
// Default and treated as read-only afterwards.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	NotesDir  string `yaml:"notes_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" (default) or "json"

	Summary   SummaryConfig               `yaml:"summary"`
	Providers map[string]ProviderConfig   `yaml:"providers"`
	Models    map[string]ModelParameters  `yaml:"-"` // decoded by mergeModels
	Templates map[string]prompts.Template `yaml:"templates"`

	YouTube YouTubeConfig `yaml:"youtube"`
	Batch   BatchConfig   `yaml:"batch"`
	Publish PublishConfig `yaml:"publish"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// SummaryConfig selects what a summary run uses when the command line
// does not say otherwise.
type SummaryConfig struct {
	// Model is the primary model: single-mode summaries and the insight
	// part of a dual summary.
	Model string `yaml:"model"`
	// ChronologicalModel writes the timeline part of a dual summary.
	ChronologicalModel string `yaml:"chronological_model"`
	// Template is a template name or a dual family name.
	Template string `yaml:"template"`
	// MaxRetries bounds language-correction attempts per part.
	MaxRetries int `yaml:"max_retries"`
	// Parallel runs the two parts of a dual summary concurrently.
	Parallel bool `yaml:"parallel"`
	// DefaultProvider serves models with no provider of their own.
	DefaultProvider string `yaml:"default_provider"`
}

// ProviderConfig describes one model endpoint.
type ProviderConfig struct {
	// Kind selects the wire protocol: "openai" (OpenRouter, Gemini and
	// other OpenAI-compatible endpoints), "anthropic" or "ollama".
	Kind       string            `yaml:"kind"`
	BaseURL    string            `yaml:"base_url"`
	APIKey     string            `yaml:"api_key"`
	Timeout    time.Duration     `yaml:"timeout"`
	MaxRetries int               `yaml:"max_retries"`
	Headers    map[string]string `yaml:"headers"`
}

// Configured reports whether the provider has what it needs to make calls.
func (p ProviderConfig) Configured() bool {
	if p.Kind == KindOllama {
		return true
	}
	return p.APIKey != ""
}

// Provider kinds.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindOllama    = "ollama"
)

// PricingEntry is a model's cost per million tokens in USD.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// ModelParameters are the per-model generation settings. Temperature
// defaults to DefaultTemperature for models added by a config file.
// MaxContentLength caps the transcript runes sent in one prompt; zero
// means no cap.
type ModelParameters struct {
	MaxTokens        int          `yaml:"max_tokens"`
	Temperature      float64      `yaml:"temperature"`
	Description      string       `yaml:"description"`
	Provider         string       `yaml:"provider"`
	MaxContentLength int          `yaml:"max_content_length"`
	Pricing          PricingEntry `yaml:"pricing"`
}

// modelOverride is a models entry as written in a file. Nil fields were
// not set.
type modelOverride struct {
	MaxTokens        *int          `yaml:"max_tokens"`
	Temperature      *float64      `yaml:"temperature"`
	Description      *string       `yaml:"description"`
	Provider         *string       `yaml:"provider"`
	MaxContentLength *int          `yaml:"max_content_length"`
	Pricing          *PricingEntry `yaml:"pricing"`
}

func (o modelOverride) apply(p ModelParameters) ModelParameters {
	if o.MaxTokens != nil {
		p.MaxTokens = *o.MaxTokens
	}
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.Description != nil {
		p.Description = *o.Description
	}
	if o.Provider != nil {
		p.Provider = *o.Provider
	}
	if o.MaxContentLength != nil {
		p.MaxContentLength = *o.MaxContentLength
	}
	if o.Pricing != nil {
		p.Pricing = *o.Pricing
	}
	return p
}

// mergeModels lays file entries over the built-in table. A model new to
// the table starts from DefaultTemperature.
func (c *Config) mergeModels(file map[string]modelOverride) {
	if c.Models == nil {
		c.Models = make(map[string]ModelParameters, len(file))
	}
	for name, o := range file {
		base, ok := c.Models[name]
		if !ok {
			base = ModelParameters{Temperature: DefaultTemperature}
		}
		c.Models[name] = o.apply(base)
	}
}

// YouTubeConfig configures metadata, caption and feed access.
type YouTubeConfig struct {
	APIKey       string        `yaml:"api_key"`
	Languages    []string      `yaml:"languages"`
	ChannelsFile string        `yaml:"channels_file"`
	DaysBack     int           `yaml:"days_back"`
	MinDuration  time.Duration `yaml:"min_duration"`
}

// BatchConfig controls the backlog runner.
type BatchConfig struct {
	ProcessCount int           `yaml:"process_count"`
	MinDelay     time.Duration `yaml:"min_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	LockFile     string        `yaml:"lock_file"`
}

// PublishConfig lists optional destinations for finished notes.
type PublishConfig struct {
	WebDAV WebDAVConfig `yaml:"webdav"`
	GitHub GitHubConfig `yaml:"github"`
	Mail   MailConfig   `yaml:"mail"`
}

// WebDAVConfig uploads notes to a WebDAV share (e.g. a synced vault).
type WebDAVConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Dir      string `yaml:"dir"`
}

// Configured reports whether WebDAV publishing is enabled.
func (c WebDAVConfig) Configured() bool { return c.URL != "" }

// GitHubConfig commits notes to a repository through the Git data API.
type GitHubConfig struct {
	Token  string `yaml:"token"`
	Repo   string `yaml:"repo"` // owner/name
	Branch string `yaml:"branch"`
	Dir    string `yaml:"dir"`
	URL    string `yaml:"url"` // GitHub Enterprise base URL; empty for github.com
}

// Configured reports whether GitHub publishing is enabled.
func (c GitHubConfig) Configured() bool { return c.Token != "" && c.Repo != "" }

// MailConfig sends each finished summary as an e-mail digest.
type MailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	StartTLS bool     `yaml:"starttls"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Configured reports whether mail publishing is enabled.
func (c MailConfig) Configured() bool { return c.Host != "" && c.From != "" && len(c.To) > 0 }

// MQTTConfig publishes run events to a broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// Configured reports whether event publishing is enabled.
func (c MQTTConfig) Configured() bool { return c.Broker != "" }

// Load reads a YAML file over the built-in defaults. Environment
// variables in the file are expanded first. Template entries in the file
// are added to, or replace, the built-in ones by name. Model entries are
// merged key by key, so a file that sets only max_tokens for a built-in
// model keeps its provider, temperature and pricing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes over the built-in defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := builtin()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	var file struct {
		Models map[string]modelOverride `yaml:"models"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, err
	}
	cfg.mergeModels(file.Models)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial file and stamps
// template names from their map keys.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.DataDir = paths.ExpandHome(c.DataDir)
	if c.NotesDir == "" {
		c.NotesDir = filepath.Join(c.DataDir, "notes")
	}
	c.NotesDir = paths.ExpandHome(c.NotesDir)
	if c.Summary.Model == "" {
		c.Summary.Model = DefaultModel
	}
	if c.Summary.ChronologicalModel == "" {
		c.Summary.ChronologicalModel = DefaultChronologicalModel
	}
	if c.Summary.Template == "" {
		c.Summary.Template = prompts.DefaultTemplate
	}
	if c.Summary.MaxRetries <= 0 {
		c.Summary.MaxRetries = DefaultMaxRetries
	}
	if c.Summary.DefaultProvider == "" {
		c.Summary.DefaultProvider = "openrouter"
	}
	if len(c.YouTube.Languages) == 0 {
		c.YouTube.Languages = []string{"ja", "en", "en-US", "en-GB"}
	}
	if c.YouTube.APIKey == "" {
		c.YouTube.APIKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if c.YouTube.ChannelsFile == "" {
		c.YouTube.ChannelsFile = filepath.Join(c.DataDir, "channels.csv")
	}
	c.YouTube.ChannelsFile = paths.ExpandHome(c.YouTube.ChannelsFile)
	if c.YouTube.DaysBack <= 0 {
		c.YouTube.DaysBack = 7
	}
	if c.YouTube.MinDuration == 0 {
		c.YouTube.MinDuration = 10 * time.Minute
	}
	if c.Batch.ProcessCount <= 0 {
		c.Batch.ProcessCount = 1
	}
	if c.Batch.MinDelay == 0 && c.Batch.MaxDelay == 0 {
		c.Batch.MinDelay = 5 * time.Second
		c.Batch.MaxDelay = 30 * time.Second
	}
	if c.Batch.LockFile == "" {
		c.Batch.LockFile = filepath.Join(c.DataDir, "batch.lock")
	}
	c.Batch.LockFile = paths.ExpandHome(c.Batch.LockFile)
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "tubedigest/events"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "tubedigest"
	}
	for name, t := range c.Templates {
		t.Name = name
		c.Templates[name] = t
	}
	builtin := builtinProviders()
	for name, p := range c.Providers {
		if b, ok := builtin[name]; ok {
			p = inheritProvider(p, b)
		}
		if p.Kind == "" {
			p.Kind = KindOpenAI
		}
		if p.Timeout == 0 {
			p.Timeout = 60 * time.Second
		}
		c.Providers[name] = p
	}
}

func inheritProvider(p, base ProviderConfig) ProviderConfig {
	if p.Kind == "" {
		p.Kind = base.Kind
	}
	if p.BaseURL == "" {
		p.BaseURL = base.BaseURL
	}
	if p.APIKey == "" {
		p.APIKey = base.APIKey
	}
	if p.Timeout == 0 {
		p.Timeout = base.Timeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = base.MaxRetries
	}
	if p.Headers == nil {
		p.Headers = base.Headers
	}
	return p
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q: expected text or json", c.LogFormat)
	}
	for name, m := range c.Models {
		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q: max_tokens must be positive", name)
		}
		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q: temperature %.2f outside [0, 2]", name, m.Temperature)
		}
		if m.Provider != "" {
			if _, ok := c.Providers[m.Provider]; !ok {
				return fmt.Errorf("model %q: %w %q", name, ErrUnknownProvider, m.Provider)
			}
		}
	}
	for name, p := range c.Providers {
		switch p.Kind {
		case KindOpenAI, KindAnthropic, KindOllama:
		default:
			return fmt.Errorf("provider %q: unknown kind %q", name, p.Kind)
		}
	}
	if c.Batch.MaxDelay < c.Batch.MinDelay {
		return fmt.Errorf("batch: max_delay %s is less than min_delay %s", c.Batch.MaxDelay, c.Batch.MinDelay)
	}
	return nil
}

// ModelNames returns the configured model identifiers, sorted.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TemplateNames returns the configured template names, sorted.
func (c *Config) TemplateNames() []string {
	names := make([]string, 0, len(c.Templates))
	for name := range c.Templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
