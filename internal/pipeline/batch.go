package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nugget/tubedigest/internal/channels"
	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/mqtt"
	"github.com/nugget/tubedigest/internal/publish"
	"github.com/nugget/tubedigest/internal/state"
	"github.com/nugget/tubedigest/internal/youtube"
)

// ErrLocked means another batch run holds the lock file.
var ErrLocked = errors.New("another batch run is in progress")

// Feeds lists a channel's recent uploads.
type Feeds interface {
	Recent(ctx context.Context, channelID string, since time.Time) ([]youtube.FeedEntry, error)
}

// Events receives run events.
type Events interface {
	Emit(ctx context.Context, ev mqtt.Event)
}

// Publisher ships a run's notes.
type Publisher interface {
	Publish(ctx context.Context, cs publish.Changeset) error
}

// BatchOptions select what one run does.
type BatchOptions struct {
	// Poll checks channel feeds and queues new uploads first.
	Poll bool
	// Count caps how many queued videos are processed. Zero uses the
	// configured process count; negative processes none.
	Count int
}

// BatchReport summarizes a run.
type BatchReport struct {
	RunID     string
	Queued    int
	Processed int
	Failed    int
	Skipped   int
	// PublishErr is set when one or more sinks rejected the notes.
	PublishErr error
}

// Batch is the unattended runner: poll feeds into the backlog, then
// work through the backlog.
type Batch struct {
	cfg       *config.Config
	proc      *Processor
	state     *state.Store
	feeds     Feeds
	channels  []channels.Channel
	publisher Publisher
	events    Events
	tokens    *mqtt.RunTokens
	logger    *slog.Logger

	// ChannelInterval spaces feed requests.
	ChannelInterval time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
	now             func() time.Time
}

// NewBatch creates a runner. publisher, events and tokens may be nil.
func NewBatch(cfg *config.Config, proc *Processor, st *state.Store, feeds Feeds, chs []channels.Channel, publisher Publisher, events Events, tokens *mqtt.RunTokens, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		cfg:             cfg,
		proc:            proc,
		state:           st,
		feeds:           feeds,
		channels:        chs,
		publisher:       publisher,
		events:          events,
		tokens:          tokens,
		logger:          logger.With("component", "batch"),
		ChannelInterval: 3 * time.Second,
		sleep:           sleepCtx,
		now:             time.Now,
	}
}

// Run performs one batch under the lock file. It returns ErrLocked
// without doing anything when another run is active.
func (b *Batch) Run(ctx context.Context, opts BatchOptions) (*BatchReport, error) {
	if err := os.MkdirAll(filepath.Dir(b.cfg.Batch.LockFile), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(b.cfg.Batch.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", b.cfg.Batch.LockFile, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer lock.Unlock()

	rep := &BatchReport{RunID: newRunID()}
	log := b.logger.With("run_id", rep.RunID)
	log.Info("batch started", "poll", opts.Poll, "channels", len(b.channels))
	b.emit(ctx, mqtt.Event{Type: mqtt.EventRunStarted, RunID: rep.RunID})

	if opts.Poll {
		n, err := b.poll(ctx, log)
		if err != nil {
			return rep, err
		}
		rep.Queued = n
	}

	count := opts.Count
	if count == 0 {
		count = b.cfg.Batch.ProcessCount
	}
	files, err := b.drain(ctx, log, rep, count)
	if err != nil {
		return rep, err
	}

	if rep.Processed > 0 {
		if err := b.state.SetLastProcessed(ctx, b.now().UTC()); err != nil {
			return rep, err
		}
		if b.publisher != nil {
			rep.PublishErr = b.publisher.Publish(ctx, publish.Changeset{
				Message: publish.CommitMessage(rep.Processed),
				Files:   files,
			})
		}
	}

	finished := mqtt.Event{
		Type:      mqtt.EventRunFinished,
		RunID:     rep.RunID,
		Queued:    rep.Queued,
		Processed: rep.Processed,
		Failed:    rep.Failed,
	}
	if b.tokens != nil {
		finished.InputTokens, finished.OutputTokens, _ = b.tokens.Snapshot()
	}
	b.emit(ctx, finished)
	log.Info("batch finished",
		"queued", rep.Queued,
		"processed", rep.Processed,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
	)
	return rep, nil
}

// poll queues uploads from the last DaysBack days that are neither
// processed nor already in the backlog. A channel whose feed fails is
// logged and skipped.
func (b *Batch) poll(ctx context.Context, log *slog.Logger) (int, error) {
	since := b.now().AddDate(0, 0, -b.cfg.YouTube.DaysBack)
	limit := rate.Inf
	if b.ChannelInterval > 0 {
		limit = rate.Every(b.ChannelInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	queued := 0
	for _, ch := range b.channels {
		if err := limiter.Wait(ctx); err != nil {
			return queued, err
		}
		entries, err := b.feeds.Recent(ctx, ch.ID, since)
		if err != nil {
			log.Warn("feed fetch failed", "channel", ch.DisplayName(), "error", err)
			continue
		}
		for _, e := range entries {
			done, err := b.state.IsProcessed(ctx, e.VideoID)
			if err != nil {
				return queued, err
			}
			if done {
				continue
			}
			added, err := b.state.Enqueue(ctx, state.Item{
				VideoID:     e.VideoID,
				Title:       e.Title,
				Channel:     channelName(ch, e),
				PublishedAt: e.Published.UTC().Format(time.RFC3339),
				Lang:        ch.Lang,
			})
			if err != nil {
				return queued, err
			}
			if added {
				queued++
				log.Debug("queued", "video_id", e.VideoID, "title", e.Title)
			}
		}
	}
	log.Info("feeds polled", "channels", len(b.channels), "queued", queued)
	return queued, nil
}

func channelName(ch channels.Channel, e youtube.FeedEntry) string {
	if ch.Name != "" {
		return ch.Name
	}
	return e.Channel
}

// drain processes up to count queued videos, pausing between them.
func (b *Batch) drain(ctx context.Context, log *slog.Logger, rep *BatchReport, count int) ([]publish.File, error) {
	var files []publish.File
	attempted := 0
	for attempted < count {
		item, err := b.state.Next(ctx)
		if errors.Is(err, state.ErrEmptyQueue) {
			break
		}
		if err != nil {
			return files, err
		}

		if attempted > 0 {
			if err := b.sleep(ctx, b.delay()); err != nil {
				return files, err
			}
		}

		out, err := b.proc.Process(ctx, Job{
			Ref:         item.VideoID,
			Languages:   b.languages(item),
			MinDuration: b.cfg.YouTube.MinDuration,
			RunID:       rep.RunID,
		})
		switch {
		case errors.Is(err, ErrTooShort):
			rep.Skipped++
			if err := b.state.Remove(ctx, item.VideoID); err != nil {
				return files, err
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return files, ctx.Err()
			}
			attempted++
			rep.Failed++
			log.Error("video failed", "video_id", item.VideoID, "title", item.Title, "error", err)
			if ferr := b.state.Fail(ctx, item.VideoID, err.Error()); ferr != nil {
				return files, ferr
			}
			b.emit(ctx, mqtt.Event{
				Type:    mqtt.EventVideoFailed,
				RunID:   rep.RunID,
				VideoID: item.VideoID,
				Title:   item.Title,
				Channel: item.Channel,
				Error:   err.Error(),
			})
			continue
		}

		attempted++
		rep.Processed++
		files = append(files, out.Files...)
		b.emit(ctx, mqtt.Event{
			Type:    mqtt.EventVideoProcessed,
			RunID:   rep.RunID,
			VideoID: out.Video.ID,
			Title:   out.Video.Title,
			Channel: out.Video.Channel,
			Status:  out.Status.String(),
		})
	}
	return files, nil
}

// languages puts the item's channel language ahead of the configured
// caption preferences.
func (b *Batch) languages(item state.Item) []string {
	if item.Lang == "" {
		return b.cfg.YouTube.Languages
	}
	return channels.Channel{Lang: item.Lang}.Languages(b.cfg.YouTube.Languages)
}

// delay picks a random pause in [MinDelay, MaxDelay].
func (b *Batch) delay() time.Duration {
	lo, hi := b.cfg.Batch.MinDelay, b.cfg.Batch.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func (b *Batch) emit(ctx context.Context, ev mqtt.Event) {
	if b.events != nil {
		b.events.Emit(ctx, ev)
	}
}

func newRunID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
