package llm

import "time"

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options carry per-call generation settings.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the provider-neutral result of one streamed call.
// Message.Content holds the full concatenated text.
type ChatResponse struct {
	Model   string
	Message Message
	Done    bool

	InputTokens  int
	OutputTokens int

	Elapsed time.Duration
}

// StreamEvent is one event in a streaming response.
type StreamEvent struct {
	Kind StreamEventKind

	// Token is set for KindToken events.
	Token string

	// Response is set for KindDone events.
	Response *ChatResponse
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindToken is an incremental text fragment from the model.
	KindToken StreamEventKind = iota

	// KindDone signals the stream is complete.
	KindDone
)

// StreamCallback receives streaming events in order. It may be nil.
type StreamCallback func(event StreamEvent)

func emit(cb StreamCallback, ev StreamEvent) {
	if cb != nil {
		cb(ev)
	}
}
