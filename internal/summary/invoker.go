package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/langcheck"
	"github.com/nugget/tubedigest/internal/llm"
	"github.com/nugget/tubedigest/internal/prompts"
	"github.com/nugget/tubedigest/internal/usage"
)

// Recorder persists token usage for each model call.
type Recorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Part is one model call's worth of input.
type Part struct {
	// Label names the part in logs and usage records.
	Label       string
	Model       string
	Template    string
	Transcript  string
	Description string

	RunID   string
	VideoID string
}

// Invoker runs a Part against a model, retrying with a language
// directive when the output is in the wrong script.
type Invoker struct {
	client     llm.Client
	cfg        *config.Config
	maxRetries int
	recorder   Recorder
	logger     *slog.Logger
}

// NewInvoker creates an Invoker. maxRetries below 1 is treated as 1.
func NewInvoker(client llm.Client, cfg *config.Config, maxRetries int, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		client:     client,
		cfg:        cfg,
		maxRetries: max(maxRetries, 1),
		logger:     logger.With("component", "invoker"),
	}
}

// SetRecorder enables usage recording.
func (inv *Invoker) SetRecorder(r Recorder) {
	inv.recorder = r
}

// Invoke runs p. The only error is an unknown template, reported before
// any model call. Everything after that is graded by Result.Status:
// model failures yield Failed with an error notice as Text, and text that
// never passes the language check yields Degraded with the last attempt.
func (inv *Invoker) Invoke(ctx context.Context, p Part) (Result, error) {
	tmpl, err := inv.cfg.Template(p.Template)
	if err != nil {
		return Result{}, err
	}
	params := inv.cfg.ModelParams(p.Model)
	target := prompts.TargetLanguage(p.Template)
	log := inv.logger.With("part", p.Label, "model", p.Model, "template", p.Template, "video_id", p.VideoID)

	input := clipRunes(p.Transcript, params.MaxContentLength)
	if len(input) < len(p.Transcript) {
		log.Warn("transcript truncated to model limit", "max_content_length", params.MaxContentLength)
	}
	base := prompts.Compose(tmpl, input, p.Description)
	opts := llm.Options{MaxTokens: params.MaxTokens, Temperature: params.Temperature}

	res := Result{Model: p.Model, Template: p.Template}

	for n := 1; n <= inv.maxRetries; n++ {
		prompt := base
		if n > 1 {
			prompt = prompts.WithLanguageDirective(base, target)
		}
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: prompt.System},
			{Role: llm.RoleUser, Content: prompt.User},
		}

		log.Debug("generating", "attempt", n, "max_tokens", opts.MaxTokens, "temperature", opts.Temperature)

		var text strings.Builder
		resp, err := inv.client.ChatStream(ctx, p.Model, messages, opts, func(ev llm.StreamEvent) {
			if ev.Kind == llm.KindToken {
				text.WriteString(ev.Token)
			}
		})
		if err != nil {
			log.Error("generation failed", "attempt", n, "error", err)
			inv.record(ctx, p, n, nil, "error")
			res.Status = Failed
			res.Reason = err.Error()
			res.Text = fmt.Sprintf("生成エラー (%s): %v", p.Model, err)
			return res, nil
		}
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens

		verdict := langcheck.Detect(text.String(), target)
		res.Attempts = append(res.Attempts, Attempt{
			Model:    p.Model,
			Template: p.Template,
			Number:   n,
			Target:   target,
			Text:     text.String(),
			Passed:   !verdict.Violated,
			Reason:   verdict.Reason,
		})
		res.Text = text.String()

		if !verdict.Violated {
			inv.record(ctx, p, n, resp, "passed")
			res.Status = Success
			if n > 1 {
				log.Info("language corrected on retry", "attempt", n)
			}
			return res, nil
		}
		inv.record(ctx, p, n, resp, "rejected")

		if n < inv.maxRetries {
			log.Warn("language check failed, retrying", "attempt", n, "reason", verdict.Reason)
			continue
		}
		log.Warn("language check failed on final attempt, keeping text",
			"attempts", n, "reason", verdict.Reason)
		res.Status = Degraded
		res.Reason = verdict.Reason
	}
	return res, nil
}

func (inv *Invoker) record(ctx context.Context, p Part, attempt int, resp *llm.ChatResponse, status string) {
	if inv.recorder == nil {
		return
	}
	rec := usage.Record{
		RunID:    p.RunID,
		VideoID:  p.VideoID,
		Part:     p.Label,
		Attempt:  attempt,
		Model:    p.Model,
		Provider: inv.cfg.ProviderFor(p.Model),
		Template: p.Template,
		Status:   status,
	}
	if resp != nil {
		rec.InputTokens = resp.InputTokens
		rec.OutputTokens = resp.OutputTokens
	}
	if err := inv.recorder.Record(ctx, rec); err != nil {
		inv.logger.Warn("failed to record usage", "error", err)
	}
}

// clipRunes returns the first n runes of s. n <= 0 means no limit.
func clipRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
