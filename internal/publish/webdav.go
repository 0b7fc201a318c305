package publish

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/emersion/go-webdav"

	"github.com/nugget/tubedigest/internal/config"
)

// WebDAVSink uploads notes to a WebDAV share, such as a synced notes
// vault.
type WebDAVSink struct {
	client *webdav.Client
	dir    string
}

// NewWebDAVSink creates a sink for cfg, sending requests through
// httpClient.
func NewWebDAVSink(cfg config.WebDAVConfig, httpClient *http.Client) (*WebDAVSink, error) {
	var hc webdav.HTTPClient = httpClient
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, cfg.Username, cfg.Password)
	}
	c, err := webdav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("webdav client: %w", err)
	}
	return &WebDAVSink{client: c, dir: cfg.Dir}, nil
}

// Name implements Sink.
func (s *WebDAVSink) Name() string { return "webdav" }

// Publish uploads every file, creating collections as needed.
func (s *WebDAVSink) Publish(ctx context.Context, cs Changeset) error {
	made := make(map[string]bool)
	for _, f := range cs.Files {
		name := joinPath(s.dir, f.Path)
		if err := s.ensureDir(ctx, path.Dir(name), made); err != nil {
			return err
		}
		if err := s.put(ctx, name, f.Data); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebDAVSink) put(ctx context.Context, name string, data []byte) error {
	w, err := s.client.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// ensureDir creates dir and its parents, skipping ones that exist.
func (s *WebDAVSink) ensureDir(ctx context.Context, dir string, made map[string]bool) error {
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	var cur string
	for _, part := range strings.Split(dir, "/") {
		cur = path.Join(cur, part)
		if made[cur] {
			continue
		}
		if _, err := s.client.Stat(ctx, cur+"/"); err != nil {
			if err := s.client.Mkdir(ctx, cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
		made[cur] = true
	}
	return nil
}
