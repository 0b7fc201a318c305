// Package pipeline strings the pieces together: fetch a video's captions
// and metadata, write the transcript note, summarize it, record the
// result and hand the files to the publishers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/prompts"
	"github.com/nugget/tubedigest/internal/publish"
	"github.com/nugget/tubedigest/internal/state"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/transcript"
	"github.com/nugget/tubedigest/internal/youtube"
)

// ErrTooShort is returned for videos below the configured minimum
// duration. Nothing is written for them.
var ErrTooShort = errors.New("video shorter than minimum duration")

// MetadataSource looks up video details.
type MetadataSource interface {
	Video(ctx context.Context, id string) (*youtube.Video, error)
}

// CaptionSource downloads a caption track.
type CaptionSource interface {
	Fetch(ctx context.Context, videoID string, langs []string) ([]transcript.Fragment, youtube.Track, error)
}

// Summarizer produces a summary from a transcript note.
type Summarizer interface {
	Synthesize(ctx context.Context, req summary.Request) (summary.SummaryResult, error)
}

// Job is one video to process.
type Job struct {
	// Ref is a video URL or bare id.
	Ref string
	// Languages overrides the configured caption preferences.
	Languages []string

	Template           string
	Model              string
	ChronologicalModel string

	// MinDuration skips shorter videos when positive.
	MinDuration time.Duration
	RunID       string
}

// Outcome describes a processed video.
type Outcome struct {
	Video          *youtube.Video
	Track          youtube.Track
	TranscriptPath string
	CleanedPath    string
	SummaryPath    string
	Status         summary.Status
	// SummaryErr is set when no summary could be produced. The notes
	// are still written with a placeholder summary.
	SummaryErr error
	// Files are the written notes, relative to the notes root.
	Files []publish.File
}

// Processor runs the per-video steps.
type Processor struct {
	cfg      *config.Config
	meta     MetadataSource
	captions CaptionSource
	synth    Summarizer
	notes    *publish.Notes
	state    *state.Store
	logger   *slog.Logger
}

// NewProcessor creates a Processor. st may be nil to skip state
// tracking.
func NewProcessor(cfg *config.Config, meta MetadataSource, captions CaptionSource, synth Summarizer, notes *publish.Notes, st *state.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:      cfg,
		meta:     meta,
		captions: captions,
		synth:    synth,
		notes:    notes,
		state:    st,
		logger:   logger.With("component", "processor"),
	}
}

// Process fetches, writes and summarizes one video. A returned error
// means the video could not be processed at all; a summary that could
// not be generated is reported in Outcome.SummaryErr instead, with the
// transcript notes kept.
func (p *Processor) Process(ctx context.Context, job Job) (*Outcome, error) {
	id, err := youtube.ResolveVideoID(job.Ref)
	if err != nil {
		return nil, err
	}
	log := p.logger.With("video_id", id, "run_id", job.RunID)

	v, err := p.meta.Video(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", id, err)
	}
	if job.MinDuration > 0 && v.Duration > 0 && v.Duration < job.MinDuration {
		log.Info("skipping short video", "duration", v.Duration, "min", job.MinDuration)
		return nil, fmt.Errorf("%s (%s): %w", id, v.Duration, ErrTooShort)
	}

	langs := job.Languages
	if len(langs) == 0 {
		langs = p.cfg.YouTube.Languages
	}
	frags, track, err := p.captions.Fetch(ctx, id, langs)
	if err != nil {
		return nil, fmt.Errorf("captions for %s: %w", id, err)
	}
	log.Info("captions fetched", "title", v.Title, "lang", track.LanguageCode, "generated", track.Generated(), "fragments", len(frags))

	job = p.withDefaults(job)
	note := transcript.Note{
		Title:       v.Title,
		VideoID:     v.ID,
		Channel:     v.Channel,
		Published:   v.PublishedAt,
		URL:         youtube.WatchURL(v.ID),
		Thumbnail:   v.Thumbnail,
		Description: v.Description,
		Model:       strings.Join(jobModels(job), " + "),
		Fragments:   frags,
	}
	notePath, err := p.notes.WriteTranscript(note, v)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Video: v, Track: track, TranscriptPath: notePath}

	res, err := p.synth.Synthesize(ctx, summary.Request{
		Transcript:         note.Markdown(),
		Description:        v.Description,
		Template:           job.Template,
		Model:              job.Model,
		ChronologicalModel: job.ChronologicalModel,
		RunID:              job.RunID,
		VideoID:            id,
	})

	var text string
	meta := publish.SummaryMeta{}
	if err != nil {
		log.Error("summary failed", "error", err)
		out.SummaryErr = err
		out.Status = summary.Failed
		text = publish.FailureSummary(err)
		meta.Status = summary.Failed.String()
	} else {
		out.Status = res.Status
		text = res.Merged
		meta.Models = res.Models()
		meta.Status = res.Status.String()
		if out.CleanedPath, err = p.notes.WriteCleaned(notePath, res.Cleaned); err != nil {
			return nil, err
		}
	}

	summaryPath, _, err := p.notes.WriteSummary(v, text, meta)
	if err != nil {
		return nil, err
	}
	out.SummaryPath = summaryPath
	if err := publish.AddSummaryToNote(notePath, text); err != nil {
		return nil, fmt.Errorf("add summary to note: %w", err)
	}

	if p.state != nil {
		if err := p.state.MarkProcessed(ctx, state.Processed{
			VideoID:     id,
			Title:       v.Title,
			Channel:     v.Channel,
			ProcessedAt: time.Now().UTC(),
			SummaryPath: p.notes.Rel(summaryPath),
			Status:      meta.Status,
		}); err != nil {
			return nil, err
		}
	}

	out.Files, err = p.collect(notePath, out.CleanedPath, summaryPath)
	if err != nil {
		return nil, err
	}
	log.Info("video processed", "status", meta.Status, "summary", p.notes.Rel(summaryPath))
	return out, nil
}

func (p *Processor) withDefaults(job Job) Job {
	if job.Template == "" {
		job.Template = p.cfg.Summary.Template
	}
	if job.Model == "" {
		job.Model = p.cfg.Summary.Model
	}
	if job.ChronologicalModel == "" {
		job.ChronologicalModel = p.cfg.Summary.ChronologicalModel
	}
	return job
}

// jobModels lists the models a job will call, in merge order.
func jobModels(job Job) []string {
	if prompts.IsDualFamily(job.Template) {
		return []string{job.Model, job.ChronologicalModel}
	}
	return []string{job.Model}
}

// collect reads back the written notes for publishing. The JSON dump
// sits next to the transcript note.
func (p *Processor) collect(notePath, cleanedPath, summaryPath string) ([]publish.File, error) {
	paths := []string{notePath, strings.TrimSuffix(notePath, ".md") + ".json"}
	if cleanedPath != "" {
		paths = append(paths, cleanedPath)
	}
	paths = append(paths, summaryPath)

	files := make([]publish.File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read note: %w", err)
		}
		files = append(files, publish.File{Path: p.notes.Rel(path), Data: data})
	}
	return files, nil
}
