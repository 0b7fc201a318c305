package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/transcript"
	"github.com/nugget/tubedigest/internal/youtube"
)

type fakeInvoker struct {
	mu    sync.Mutex
	parts []summary.Part
	err   error
}

func (f *fakeInvoker) Invoke(_ context.Context, p summary.Part) (summary.Result, error) {
	f.mu.Lock()
	f.parts = append(f.parts, p)
	f.mu.Unlock()
	if f.err != nil {
		return summary.Result{}, f.err
	}
	res := summary.Result{Model: p.Model, Template: p.Template, InputTokens: 10, OutputTokens: 5, Text: "**「" + p.Model + "」**の要約"}
	if p.Model == "slow/model" {
		// Finishing last must not change the report order.
		time.Sleep(20 * time.Millisecond)
		res.Status = summary.Degraded
		res.Reason = "Korean (Hangul) characters detected"
	}
	return res, nil
}

func newTestComparer(t *testing.T, inv PartInvoker) (*Comparer, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	meta := &fakeMeta{videos: map[string]*youtube.Video{testID: video(testID, "比較対象", 20*time.Minute)}}
	caps := &fakeCaptions{frags: map[string][]transcript.Fragment{testID: frags("本題")}}
	return NewComparer(cfg, meta, caps, inv, cfg.NotesDir, quietLogger()), cfg
}

func TestCompare(t *testing.T) {
	inv := &fakeInvoker{}
	c, _ := newTestComparer(t, inv)

	cmp, err := c.Compare(context.Background(), testID, []string{"slow/model", "fast/model"}, "supereditor", "run-c")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp.Template != "supereditor_insight_v2" {
		t.Errorf("Template = %q", cmp.Template)
	}
	if len(cmp.Runs) != 2 || cmp.Runs[0].Model != "slow/model" || cmp.Runs[1].Model != "fast/model" {
		t.Fatalf("runs = %+v", cmp.Runs)
	}

	for _, p := range inv.parts {
		if p.Label != "compare" || p.Transcript != "本題 続き" || p.RunID != "run-c" || p.VideoID != testID {
			t.Errorf("part = %+v", p)
		}
	}

	report, err := os.ReadFile(cmp.ReportPath)
	if err != nil {
		t.Fatal(err)
	}
	s := string(report)
	for _, want := range []string{
		"# モデル比較: 比較対象",
		"| slow/model | degraded | 10 | 5 |",
		"## fast/model",
		"> Korean (Hangul) characters detected",
		"**「fast/model」** の要約",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("report lacks %q:\n%s", want, s)
		}
	}
	if strings.Index(s, "## slow/model") > strings.Index(s, "## fast/model") {
		t.Error("report should keep the requested model order")
	}
}

func TestCompare_Errors(t *testing.T) {
	c, _ := newTestComparer(t, &fakeInvoker{})
	ctx := context.Background()

	if _, err := c.Compare(ctx, testID, nil, "", ""); err == nil {
		t.Error("no models: expected error")
	}
	if _, err := c.Compare(ctx, testID, []string{"m"}, "no_such_template", ""); !errors.Is(err, config.ErrUnknownTemplate) {
		t.Errorf("unknown template: err = %v", err)
	}
	if _, err := c.Compare(ctx, "zzzzzzzzzzz", []string{"m"}, "", ""); !errors.Is(err, youtube.ErrVideoNotFound) {
		t.Errorf("unknown video: err = %v", err)
	}

	boom := errors.New("boom")
	c2, _ := newTestComparer(t, &fakeInvoker{err: boom})
	if _, err := c2.Compare(ctx, testID, []string{"m"}, "", ""); !errors.Is(err, boom) {
		t.Errorf("invoker error: err = %v", err)
	}
}
