package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/httpkit"
)

// OpenAIClient speaks the OpenAI chat completions protocol, which
// OpenRouter, Gemini's compatibility endpoint and most local servers
// accept.
type OpenAIClient struct {
	name       string
	baseURL    string
	apiKey     string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for the named provider.
func NewOpenAIClient(name string, p config.ProviderConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", name)

	return &OpenAIClient{
		name:       name,
		baseURL:    strings.TrimRight(p.BaseURL, "/"),
		apiKey:     p.APIKey,
		headers:    p.Headers,
		httpClient: streamingClient(p, logger),
		logger:     logger,
	}
}

// streamingClient has no overall timeout; the provider timeout bounds the
// wait for response headers and ctx bounds the rest.
func streamingClient(p config.ProviderConfig, logger *slog.Logger) *http.Client {
	t := httpkit.NewTransport()
	if p.Timeout > 0 {
		t.ResponseHeaderTimeout = p.Timeout
	}
	opts := []httpkit.ClientOption{
		httpkit.WithTimeout(0),
		httpkit.WithTransport(t),
		httpkit.WithLogger(logger),
	}
	if p.MaxRetries > 0 {
		opts = append(opts, httpkit.WithRetry(p.MaxRetries, time.Second))
	}
	return httpkit.NewClient(opts...)
}

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []Message            `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   float64              `json:"temperature"`
	Stream        bool                 `json:"stream"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ChatStream implements Client.
func (c *OpenAIClient) ChatStream(ctx context.Context, model string, messages []Message, opts Options, callback StreamCallback) (*ChatResponse, error) {
	req := openaiRequest{
		Model:         model,
		Messages:      messages,
		MaxTokens:     opts.MaxTokens,
		Temperature:   opts.Temperature,
		Stream:        true,
		StreamOptions: &openaiStreamOptions{IncludeUsage: true},
	}
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(messages),
		"max_tokens", opts.MaxTokens,
		"temperature", opts.Temperature,
	)
	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("%s API error %d: %s", c.name, resp.StatusCode, errBody)
	}

	var (
		content strings.Builder
		out     = &ChatResponse{Model: model}
	)
	err = readSSE(resp.Body, func(data string) (bool, error) {
		var chunk openaiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("skipping malformed chunk", "data", data)
			return false, nil
		}
		if chunk.Error != nil {
			return true, fmt.Errorf("%s stream error: %s", c.name, chunk.Error.Message)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			if tok := choice.Delta.Content; tok != "" {
				content.WriteString(tok)
				emit(callback, StreamEvent{Kind: KindToken, Token: tok})
			}
		}
		if chunk.Usage != nil {
			out.InputTokens = chunk.Usage.PromptTokens
			out.OutputTokens = chunk.Usage.CompletionTokens
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	out.Message = Message{Role: RoleAssistant, Content: content.String()}
	out.Done = true
	out.Elapsed = time.Since(start)

	c.logger.Debug("stream complete",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"content_len", content.Len(),
		"elapsed", out.Elapsed,
	)
	c.logger.Log(ctx, config.LevelTrace, "stream final content", "content", out.Message.Content)

	emit(callback, StreamEvent{Kind: KindDone, Response: out})
	return out, nil
}

// Ping lists models, which every compatible endpoint serves and which
// fails fast on a bad key.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 64*1024)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: invalid API key", c.name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", c.name, resp.StatusCode)
	}
	return nil
}
