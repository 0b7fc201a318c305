package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// File is one note to publish. Path is relative to the notes root and
// uses forward slashes.
type File struct {
	Path string
	Data []byte
}

// Changeset is a group of notes published together, such as everything
// one batch run produced.
type Changeset struct {
	Message string
	Files   []File
}

// CommitMessage returns the message used for a batch that processed n
// videos.
func CommitMessage(n int) string {
	return fmt.Sprintf("auto: process %d video(s) from backlog", n)
}

// Sink is a publishing destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, cs Changeset) error
}

// Publisher fans a changeset out to every configured sink.
type Publisher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewPublisher creates a Publisher over sinks.
func NewPublisher(logger *slog.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sinks: sinks, logger: logger.With("component", "publish")}
}

// Sinks returns the names of the configured sinks.
func (p *Publisher) Sinks() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name()
	}
	return names
}

// Publish sends cs to every sink. One sink failing does not stop the
// others; all failures are returned together.
func (p *Publisher) Publish(ctx context.Context, cs Changeset) error {
	if len(cs.Files) == 0 || len(p.sinks) == 0 {
		return nil
	}
	var errs []error
	for _, s := range p.sinks {
		if err := s.Publish(ctx, cs); err != nil {
			p.logger.Error("publish failed", "sink", s.Name(), "files", len(cs.Files), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		p.logger.Info("published", "sink", s.Name(), "files", len(cs.Files))
	}
	return errors.Join(errs...)
}

// joinPath joins a sink's base directory and a relative note path.
func joinPath(base, rel string) string {
	return strings.TrimPrefix(path.Join("/", base, rel), "/")
}
