package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nugget/tubedigest/internal/config"
)

// MultiClient routes requests to the appropriate provider based on model name.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback string            // provider for unlisted models
}

// NewMultiClient creates a router. Models not mapped with AddModel go to
// the fallback provider.
func NewMultiClient(fallback string) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client for a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel maps a model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

// Providers returns the registered provider names, sorted.
func (m *MultiClient) Providers() []string {
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *MultiClient) clientFor(model string) (Client, string, error) {
	provider, ok := m.models[model]
	if !ok {
		provider = m.fallback
	}
	client, ok := m.clients[provider]
	if !ok {
		return nil, provider, fmt.Errorf("no provider configured for model %q (wanted %q)", model, provider)
	}
	return client, provider, nil
}

// ChatStream sends a streaming request to the appropriate provider.
func (m *MultiClient) ChatStream(ctx context.Context, model string, messages []Message, opts Options, callback StreamCallback) (*ChatResponse, error) {
	client, _, err := m.clientFor(model)
	if err != nil {
		return nil, err
	}
	return client.ChatStream(ctx, model, messages, opts, callback)
}

// Ping checks every registered provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	var errs []error
	for _, name := range m.Providers() {
		if err := m.clients[name].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// PingProvider checks one provider by name.
func (m *MultiClient) PingProvider(ctx context.Context, name string) error {
	client, ok := m.clients[name]
	if !ok {
		return fmt.Errorf("%w: %q", config.ErrUnknownProvider, name)
	}
	return client.Ping(ctx)
}

// FromConfig builds a MultiClient with one client per configured
// provider. Providers without credentials are skipped and logged, so a
// model routed to one fails at call time with a clear message.
func FromConfig(cfg *config.Config, logger *slog.Logger) *MultiClient {
	if logger == nil {
		logger = slog.Default()
	}
	m := NewMultiClient(cfg.Summary.DefaultProvider)

	for name, p := range cfg.Providers {
		if !p.Configured() {
			logger.Debug("provider not configured, skipping", "provider", name)
			continue
		}
		switch p.Kind {
		case config.KindAnthropic:
			m.AddProvider(name, NewAnthropicClient(p, logger))
		case config.KindOllama:
			m.AddProvider(name, NewOllamaClient(p, logger))
		default:
			m.AddProvider(name, NewOpenAIClient(name, p, logger))
		}
	}
	for model := range cfg.Models {
		m.AddModel(model, cfg.ProviderFor(model))
	}
	return m
}
