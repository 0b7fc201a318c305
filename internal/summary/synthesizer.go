package summary

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/prompts"
	"github.com/nugget/tubedigest/internal/transcript"
)

// Part labels.
const (
	LabelSingle        = "single"
	LabelInsight       = "insight"
	LabelChronological = "chronological"
)

// Request describes one summary. Empty Template, Model and
// ChronologicalModel fall back to the configured summary defaults.
type Request struct {
	// Transcript is the transcript Markdown note, or any text to clean.
	Transcript  string
	Description string

	Template           string
	Model              string
	ChronologicalModel string

	RunID   string
	VideoID string
}

// Options tune a Synthesizer.
type Options struct {
	// Parallel runs the two dual-mode parts concurrently.
	Parallel bool
}

// Synthesizer produces a full summary from a transcript.
type Synthesizer struct {
	invoker *Invoker
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
}

// NewSynthesizer creates a Synthesizer over inv.
func NewSynthesizer(inv *Invoker, cfg *config.Config, opts Options, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		invoker: inv,
		cfg:     cfg,
		opts:    opts,
		logger:  logger.With("component", "synthesizer"),
	}
}

// Synthesize summarizes req. A dual family template runs an insight part
// on the transcript without timestamps and a chronological part on the
// transcript with them, then merges insight first. Any other template
// runs a single part. The error is non-nil only for an empty transcript
// or an unknown template; model trouble is graded in the result.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (SummaryResult, error) {
	req = s.withDefaults(req)

	if strings.TrimSpace(req.Transcript) == "" {
		return SummaryResult{}, ErrEmptyTranscript
	}
	cleaned := transcript.Normalize(req.Transcript, false)
	if cleaned == "" {
		return SummaryResult{}, ErrEmptyTranscript
	}
	desc := transcript.TruncateDescription(req.Description)

	if !prompts.IsDualFamily(req.Template) {
		return s.single(ctx, req, cleaned, desc)
	}
	return s.dual(ctx, req, cleaned, desc)
}

func (s *Synthesizer) withDefaults(req Request) Request {
	if req.Template == "" {
		req.Template = s.cfg.Summary.Template
	}
	if req.Model == "" {
		req.Model = s.cfg.Summary.Model
	}
	if req.ChronologicalModel == "" {
		req.ChronologicalModel = s.cfg.Summary.ChronologicalModel
	}
	return req
}

func (s *Synthesizer) single(ctx context.Context, req Request, cleaned, desc string) (SummaryResult, error) {
	res, err := s.invoker.Invoke(ctx, Part{
		Label:       LabelSingle,
		Model:       req.Model,
		Template:    req.Template,
		Transcript:  cleaned,
		Description: desc,
		RunID:       req.RunID,
		VideoID:     req.VideoID,
	})
	if err != nil {
		return SummaryResult{}, err
	}

	out := SummaryResult{
		Mode:    Single,
		Status:  res.Status,
		Insight: res,
		Merged:  FixEmphasisSpacing(res.Text),
		Cleaned: cleaned,
	}
	s.logger.Info("summary generated", "video_id", req.VideoID, "mode", out.Mode, "status", out.Status, "model", req.Model)
	return out, nil
}

func (s *Synthesizer) dual(ctx context.Context, req Request, cleaned, desc string) (SummaryResult, error) {
	insight := Part{
		Label:       LabelInsight,
		Model:       req.Model,
		Template:    prompts.InsightTemplate(req.Template),
		Transcript:  cleaned,
		Description: desc,
		RunID:       req.RunID,
		VideoID:     req.VideoID,
	}
	chrono := Part{
		Label:       LabelChronological,
		Model:       req.ChronologicalModel,
		Template:    prompts.ChronologicalTemplate(req.Template),
		Transcript:  transcript.Normalize(req.Transcript, true),
		Description: desc,
		RunID:       req.RunID,
		VideoID:     req.VideoID,
	}

	// Resolve both templates before spending a call on either.
	for _, p := range []Part{insight, chrono} {
		if _, err := s.cfg.Template(p.Template); err != nil {
			return SummaryResult{}, err
		}
	}

	// Each part writes only its own slot, so completion order cannot
	// change the merge order.
	var results [2]Result
	parts := [2]Part{insight, chrono}

	if s.opts.Parallel {
		var g errgroup.Group
		for i := range parts {
			g.Go(func() error {
				r, err := s.invoker.Invoke(ctx, parts[i])
				results[i] = r
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return SummaryResult{}, err
		}
	} else {
		for i := range parts {
			r, err := s.invoker.Invoke(ctx, parts[i])
			if err != nil {
				return SummaryResult{}, err
			}
			results[i] = r
		}
	}

	out := SummaryResult{
		Mode:          Dual,
		Status:        worst(results[0].Status, results[1].Status),
		Insight:       results[0],
		Chronological: results[1],
		Merged:        FixEmphasisSpacing(results[0].Text + "\n\n" + results[1].Text),
		Cleaned:       cleaned,
	}
	s.logger.Info("summary generated",
		"video_id", req.VideoID,
		"mode", out.Mode,
		"status", out.Status,
		"insight_model", insight.Model,
		"chronological_model", chrono.Model,
		"parallel", s.opts.Parallel,
	)
	return out, nil
}
