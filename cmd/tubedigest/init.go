package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nugget/tubedigest/examples"
)

// runInit lays out a working directory: a config file, the data
// directory and an example channel registry. Existing files are left
// alone.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing tubedigest in %s\n", dir)

	for _, sub := range []string{"data", filepath.Join("data", "notes")} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	// The config usually ends up holding API keys.
	if err := writeIfMissing(w, filepath.Join(dir, "tubedigest.yaml"), examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	if err := writeIfMissing(w, filepath.Join(dir, "data", "channels.csv"), examples.ChannelsCSV, 0o644); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit tubedigest.yaml and data/channels.csv, then run:")
	fmt.Fprintln(w, "  tubedigest process <youtube-url>")
	return nil
}

// writeIfMissing creates path with content and mode unless it already
// exists. The create is exclusive so a file appearing between checks is
// never clobbered.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if errors.Is(err, fs.ErrExist) {
		fmt.Fprintf(w, "  - %s (exists, skipping)\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
