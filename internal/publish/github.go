package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v69/github"

	"github.com/nugget/tubedigest/internal/config"
)

// GitHubSink commits notes to a repository branch in a single commit
// through the Git data API.
type GitHubSink struct {
	client *gogithub.Client
	owner  string
	repo   string
	branch string
	dir    string
	logger *slog.Logger
}

// NewGitHubSink creates a sink for cfg. A non-empty cfg.URL selects a
// GitHub Enterprise server.
func NewGitHubSink(cfg config.GitHubConfig, httpClient *http.Client, logger *slog.Logger) (*GitHubSink, error) {
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repo %q: expected owner/repo", cfg.Repo)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := gogithub.NewClient(httpClient).WithAuthToken(cfg.Token)
	if cfg.URL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.URL, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("github enterprise url: %w", err)
		}
	}

	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHubSink{
		client: client,
		owner:  owner,
		repo:   repo,
		branch: branch,
		dir:    cfg.Dir,
		logger: logger.With("component", "github"),
	}, nil
}

// Name implements Sink.
func (s *GitHubSink) Name() string { return "github" }

// Publish builds a tree on top of the branch head, commits it with the
// changeset message and fast-forwards the branch.
func (s *GitHubSink) Publish(ctx context.Context, cs Changeset) error {
	ref, _, err := s.client.Git.GetRef(ctx, s.owner, s.repo, "heads/"+s.branch)
	if err != nil {
		return fmt.Errorf("get branch %s: %w", s.branch, err)
	}
	head := ref.GetObject().GetSHA()

	parent, _, err := s.client.Git.GetCommit(ctx, s.owner, s.repo, head)
	if err != nil {
		return fmt.Errorf("get commit %s: %w", head, err)
	}

	entries := make([]*gogithub.TreeEntry, 0, len(cs.Files))
	for _, f := range cs.Files {
		entries = append(entries, &gogithub.TreeEntry{
			Path:    gogithub.Ptr(joinPath(s.dir, f.Path)),
			Mode:    gogithub.Ptr("100644"),
			Type:    gogithub.Ptr("blob"),
			Content: gogithub.Ptr(string(f.Data)),
		})
	}
	tree, _, err := s.client.Git.CreateTree(ctx, s.owner, s.repo, parent.GetTree().GetSHA(), entries)
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}

	commit, resp, err := s.client.Git.CreateCommit(ctx, s.owner, s.repo, &gogithub.Commit{
		Message: gogithub.Ptr(cs.Message),
		Tree:    &gogithub.Tree{SHA: tree.SHA},
		Parents: []*gogithub.Commit{{SHA: gogithub.Ptr(head)}},
	}, nil)
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}

	ref.Object.SHA = commit.SHA
	if _, _, err := s.client.Git.UpdateRef(ctx, s.owner, s.repo, ref, false); err != nil {
		return fmt.Errorf("update branch %s: %w", s.branch, err)
	}

	if resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		s.logger.Warn("github rate limit low", "remaining", resp.Rate.Remaining, "reset", resp.Rate.Reset.Time)
	}
	s.logger.Debug("notes committed", "repo", s.owner+"/"+s.repo, "sha", commit.GetSHA(), "files", len(cs.Files))
	return nil
}
