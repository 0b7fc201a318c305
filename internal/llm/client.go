// Package llm talks to language-model providers. Every call streams:
// tokens are delivered to a callback as they arrive and the assembled text
// is returned when the stream ends.
package llm

import "context"

// Client is implemented by every provider and by MultiClient.
type Client interface {
	// ChatStream sends messages to model and streams the reply. The
	// returned response carries the full text and token counts. An error
	// mid-stream discards the partial text.
	ChatStream(ctx context.Context, model string, messages []Message, opts Options, callback StreamCallback) (*ChatResponse, error)

	// Ping checks that the provider is reachable and the credentials work.
	Ping(ctx context.Context) error
}
