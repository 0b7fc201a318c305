package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/prompts"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/transcript"
	"github.com/nugget/tubedigest/internal/youtube"
)

// CompareDir holds comparison reports under the notes root.
const CompareDir = "compare"

// PartInvoker runs one summary part.
type PartInvoker interface {
	Invoke(ctx context.Context, p summary.Part) (summary.Result, error)
}

// ModelRun is one model's entry in a comparison.
type ModelRun struct {
	Model   string
	Result  summary.Result
	Elapsed time.Duration
}

// Comparison is the outcome of running several models on one video.
type Comparison struct {
	Video      *youtube.Video
	Template   string
	Runs       []ModelRun
	ReportPath string
}

// Comparer runs the same single-part summary through several models so
// their output can be read side by side.
type Comparer struct {
	cfg      *config.Config
	meta     MetadataSource
	captions CaptionSource
	invoker  PartInvoker
	root     string
	logger   *slog.Logger

	// Concurrency bounds how many models run at once.
	Concurrency int
}

// NewComparer creates a Comparer writing reports under notesDir.
func NewComparer(cfg *config.Config, meta MetadataSource, captions CaptionSource, invoker PartInvoker, notesDir string, logger *slog.Logger) *Comparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparer{
		cfg:         cfg,
		meta:        meta,
		captions:    captions,
		invoker:     invoker,
		root:        notesDir,
		logger:      logger.With("component", "compare"),
		Concurrency: 2,
	}
}

// Compare summarizes ref with each model using template and writes a
// Markdown report. Empty template means the configured default; a dual
// family compares its insight part. Runs keep the order of models.
func (c *Comparer) Compare(ctx context.Context, ref string, models []string, template, runID string) (*Comparison, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("no models to compare")
	}
	if template == "" {
		template = c.cfg.Summary.Template
	}
	if prompts.IsDualFamily(template) {
		template = prompts.InsightTemplate(template)
	}
	if _, err := c.cfg.Template(template); err != nil {
		return nil, err
	}

	id, err := youtube.ResolveVideoID(ref)
	if err != nil {
		return nil, err
	}
	v, err := c.meta.Video(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", id, err)
	}
	frags, _, err := c.captions.Fetch(ctx, id, c.cfg.YouTube.Languages)
	if err != nil {
		return nil, fmt.Errorf("captions for %s: %w", id, err)
	}

	cleaned := transcript.Normalize(transcript.Lines(frags), false)
	if cleaned == "" {
		return nil, summary.ErrEmptyTranscript
	}
	desc := transcript.TruncateDescription(v.Description)

	runs := make([]ModelRun, len(models))
	var g errgroup.Group
	g.SetLimit(max(c.Concurrency, 1))
	for i, model := range models {
		g.Go(func() error {
			start := time.Now()
			res, err := c.invoker.Invoke(ctx, summary.Part{
				Label:       "compare",
				Model:       model,
				Template:    template,
				Transcript:  cleaned,
				Description: desc,
				RunID:       runID,
				VideoID:     id,
			})
			if err != nil {
				return err
			}
			res.Text = summary.FixEmphasisSpacing(res.Text)
			runs[i] = ModelRun{Model: model, Result: res, Elapsed: time.Since(start)}
			c.logger.Info("model finished", "video_id", id, "model", model, "status", res.Status, "elapsed", runs[i].Elapsed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cmp := &Comparison{Video: v, Template: template, Runs: runs}
	path := filepath.Join(c.root, CompareDir, id+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create compare dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(cmp.Markdown()), 0o644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	cmp.ReportPath = path
	return cmp, nil
}

// Markdown renders the comparison: an overview table, then each model's
// summary.
func (c *Comparison) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# モデル比較: %s\n\n", c.Video.Title)
	fmt.Fprintf(&b, "- **URL**: %s\n", youtube.WatchURL(c.Video.ID))
	fmt.Fprintf(&b, "- **テンプレート**: %s\n\n", c.Template)

	b.WriteString("| モデル | 状態 | 入力トークン | 出力トークン | 試行 | 時間 |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range c.Runs {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %s |\n",
			r.Model, r.Result.Status, r.Result.InputTokens, r.Result.OutputTokens,
			len(r.Result.Attempts), r.Elapsed.Round(100*time.Millisecond))
	}

	for _, r := range c.Runs {
		fmt.Fprintf(&b, "\n---\n\n## %s\n\n", r.Model)
		if r.Result.Reason != "" {
			fmt.Fprintf(&b, "> %s\n\n", r.Result.Reason)
		}
		b.WriteString(strings.TrimSpace(r.Result.Text))
		b.WriteString("\n")
	}
	return b.String()
}
