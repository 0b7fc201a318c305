package summary

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/tubedigest/internal/llm"
	"github.com/nugget/tubedigest/internal/usage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	model    string
	messages []llm.Message
	opts     llm.Options
}

// fakeClient replies per model from a script. The last scripted reply
// repeats once the script runs out.
type fakeClient struct {
	mu      sync.Mutex
	replies map[string][]string
	delays  map[string]time.Duration
	errs    map[string]error
	calls   []call
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		replies: make(map[string][]string),
		delays:  make(map[string]time.Duration),
		errs:    make(map[string]error),
	}
}

func (f *fakeClient) ChatStream(ctx context.Context, model string, messages []llm.Message, opts llm.Options, cb llm.StreamCallback) (*llm.ChatResponse, error) {
	f.mu.Lock()
	n := 0
	for _, c := range f.calls {
		if c.model == model {
			n++
		}
	}
	f.calls = append(f.calls, call{model: model, messages: messages, opts: opts})
	script := f.replies[model]
	delay := f.delays[model]
	err := f.errs[model]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	reply := ""
	if len(script) > 0 {
		reply = script[min(n, len(script)-1)]
	}
	// Stream rune by rune so callers must concatenate.
	for _, r := range reply {
		if cb != nil {
			cb(llm.StreamEvent{Kind: llm.KindToken, Token: string(r)})
		}
	}
	resp := &llm.ChatResponse{
		Model:        model,
		Message:      llm.Message{Role: llm.RoleAssistant, Content: reply},
		Done:         true,
		InputTokens:  100,
		OutputTokens: len([]rune(reply)),
	}
	if cb != nil {
		cb(llm.StreamEvent{Kind: llm.KindDone, Response: resp})
	}
	return resp, nil
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) callsFor(model string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.model == model {
			out = append(out, c)
		}
	}
	return out
}

type memRecorder struct {
	mu   sync.Mutex
	recs []usage.Record
}

func (m *memRecorder) Record(_ context.Context, rec usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}
