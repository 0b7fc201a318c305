package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/mqtt"
	"github.com/nugget/tubedigest/internal/publish"
	"github.com/nugget/tubedigest/internal/state"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/transcript"
	"github.com/nugget/tubedigest/internal/youtube"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.NotesDir = filepath.Join(cfg.DataDir, "notes")
	cfg.Batch.LockFile = filepath.Join(cfg.DataDir, "batch.lock")
	cfg.Batch.MinDelay = 0
	cfg.Batch.MaxDelay = 0
	return cfg
}

func openState(t *testing.T) *state.Store {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type fakeMeta struct {
	videos map[string]*youtube.Video
	err    error
}

func (f *fakeMeta) Video(_ context.Context, id string) (*youtube.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.videos[id]
	if !ok {
		return nil, youtube.ErrVideoNotFound
	}
	return v, nil
}

type fakeCaptions struct {
	mu    sync.Mutex
	frags map[string][]transcript.Fragment
	langs map[string][]string
}

func (f *fakeCaptions) Fetch(_ context.Context, id string, langs []string) ([]transcript.Fragment, youtube.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.langs == nil {
		f.langs = make(map[string][]string)
	}
	f.langs[id] = langs
	frags, ok := f.frags[id]
	if !ok {
		return nil, youtube.Track{}, youtube.ErrNoCaptions
	}
	return frags, youtube.Track{LanguageCode: langs[0]}, nil
}

type fakeSynth struct {
	mu       sync.Mutex
	requests []summary.Request
	err      error
	status   summary.Status
}

func (f *fakeSynth) Synthesize(_ context.Context, req summary.Request) (summary.SummaryResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return summary.SummaryResult{}, f.err
	}
	return summary.SummaryResult{
		Mode:    summary.Single,
		Status:  f.status,
		Insight: summary.Result{Model: req.Model, Status: f.status},
		Merged:  "## 要約\n\n" + req.VideoID + " の要約",
		Cleaned: transcript.Normalize(req.Transcript, false),
	}, nil
}

type fakePublisher struct {
	got []publish.Changeset
	err error
}

func (f *fakePublisher) Publish(_ context.Context, cs publish.Changeset) error {
	f.got = append(f.got, cs)
	return f.err
}

type fakeEvents struct {
	mu     sync.Mutex
	events []mqtt.Event
}

func (f *fakeEvents) Emit(_ context.Context, ev mqtt.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type fakeFeeds struct {
	entries map[string][]youtube.FeedEntry
	errs    map[string]error
	since   time.Time
}

func (f *fakeFeeds) Recent(_ context.Context, channelID string, since time.Time) ([]youtube.FeedEntry, error) {
	f.since = since
	if err := f.errs[channelID]; err != nil {
		return nil, err
	}
	return f.entries[channelID], nil
}

func video(id, title string, d time.Duration) *youtube.Video {
	return &youtube.Video{
		ID:          id,
		Title:       title,
		Description: "説明 " + id,
		Channel:     "Chan",
		PublishedAt: "2026-10-14T08:00:00Z",
		Duration:    d,
	}
}

func frags(text string) []transcript.Fragment {
	return []transcript.Fragment{{Start: 0, Duration: 2, Text: text}, {Start: 2, Duration: 2, Text: "続き"}}
}
