package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nugget/tubedigest/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sseHandler(t *testing.T, check func(r *http.Request, body map[string]any), events ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(r, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\n\n", ev)
			w.(http.Flusher).Flush()
		}
	}
}

func TestOpenAIClient_ChatStream(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		func(r *http.Request, body map[string]any) {
			if r.URL.Path != "/api/v1/chat/completions" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
				t.Errorf("Authorization = %q", got)
			}
			if got := r.Header.Get("X-Title"); got != "tubedigest" {
				t.Errorf("X-Title = %q", got)
			}
			if body["model"] != "google/gemini-2.5-flash" || body["stream"] != true {
				t.Errorf("body = %v", body)
			}
			if body["max_tokens"].(float64) != 8192 || body["temperature"].(float64) != 0.3 {
				t.Errorf("generation settings = %v / %v", body["max_tokens"], body["temperature"])
			}
		},
		": OPENROUTER PROCESSING",
		`data: {"model":"google/gemini-2.5-flash","choices":[{"delta":{"role":"assistant","content":"こん"}}]}`,
		`data: {"choices":[{"delta":{"content":"にちは"}}]}`,
		`data: not json`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`,
		`data: [DONE]`,
	))
	defer srv.Close()

	c := NewOpenAIClient("openrouter", config.ProviderConfig{
		BaseURL: srv.URL + "/api/v1/",
		APIKey:  "sk-test",
		Headers: map[string]string{"X-Title": "tubedigest"},
	}, quietLogger())

	var tokens []string
	var done *ChatResponse
	resp, err := c.ChatStream(context.Background(), "google/gemini-2.5-flash",
		[]Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}},
		Options{MaxTokens: 8192, Temperature: 0.3},
		func(ev StreamEvent) {
			switch ev.Kind {
			case KindToken:
				tokens = append(tokens, ev.Token)
			case KindDone:
				done = ev.Response
			}
		})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if resp.Message.Content != "こんにちは" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if strings.Join(tokens, "|") != "こん|にちは" {
		t.Errorf("tokens = %v", tokens)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if done != resp {
		t.Error("KindDone should carry the final response")
	}
}

func TestOpenAIClient_StreamError(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, nil,
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
		`data: {"error":{"message":"upstream overloaded","code":502}}`,
	))
	defer srv.Close()

	c := NewOpenAIClient("openrouter", config.ProviderConfig{BaseURL: srv.URL}, quietLogger())
	_, err := c.ChatStream(context.Background(), "m", nil, Options{}, nil)
	if err == nil || !strings.Contains(err.Error(), "upstream overloaded") {
		t.Fatalf("err = %v, want stream error", err)
	}
}

func TestOpenAIClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAIClient("gemini", config.ProviderConfig{BaseURL: srv.URL}, quietLogger())
	_, err := c.ChatStream(context.Background(), "m", nil, Options{}, nil)
	if err == nil || !strings.Contains(err.Error(), "gemini API error 401") {
		t.Fatalf("err = %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("Ping should fail on 401")
	}
}

func TestOpenAIClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("local", config.ProviderConfig{BaseURL: srv.URL}, quietLogger())
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
