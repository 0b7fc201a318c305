package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/state"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/transcript"
)

// writeConfig writes a minimal config rooted in a temp directory and
// returns its path.
func writeConfig(t *testing.T) (path, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	path = filepath.Join(dir, "tubedigest.yaml")
	body := "data_dir: " + dataDir + "\nlog_level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, dataDir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		out, err := runCmd(t, args...)
		if err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(out, "Usage: tubedigest") || !strings.Contains(out, "compare <url> <model>") {
			t.Errorf("run(%v) usage output:\n%s", args, out)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command: frobnicate"},
		{"unknown flag", []string{"-verbose", "version"}, "unknown flag: -verbose"},
		{"bad output format", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"process without refs", []string{"process"}, "usage: tubedigest process"},
		{"compare without models", []string{"compare", "dQw4w9WgXcQ"}, "usage: tubedigest compare"},
		{"backlog without subcommand", []string{"backlog"}, "usage: tubedigest backlog"},
		{"missing explicit config", []string{"-config", "/nonexistent/tubedigest.yaml", "models"}, "nonexistent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "tubedigest ") || !strings.Contains(out, "go_version:") {
		t.Errorf("version output:\n%s", out)
	}

	out, err = runCmd(t, "-o", "json", "version")
	if err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version json: %v\n%s", err, out)
	}
	if info["version"] == "" || info["os"] == "" {
		t.Errorf("info = %v", info)
	}
}

func TestRun_Backlog(t *testing.T) {
	cfgPath, dataDir := writeConfig(t)

	out, err := runCmd(t, "-config", cfgPath, "backlog", "add", "https://youtu.be/dQw4w9WgXcQ", "jNQXAC9IVRw")
	if err != nil {
		t.Fatalf("backlog add: %v", err)
	}
	if !strings.Contains(out, "queued dQw4w9WgXcQ") || !strings.Contains(out, "queued jNQXAC9IVRw") {
		t.Errorf("add output:\n%s", out)
	}

	out, err = runCmd(t, "-config", cfgPath, "backlog", "add", "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "already queued") {
		t.Errorf("re-add output:\n%s", out)
	}

	if _, err := runCmd(t, "-config", cfgPath, "backlog", "add", "not a video"); err == nil {
		t.Error("bad ref: expected error")
	}

	out, err = runCmd(t, "-config", cfgPath, "-o", "json", "backlog", "list")
	if err != nil {
		t.Fatal(err)
	}
	var items []state.Item
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("list json: %v\n%s", err, out)
	}
	if len(items) != 2 || items[0].VideoID != "dQw4w9WgXcQ" || items[1].VideoID != "jNQXAC9IVRw" {
		t.Errorf("queue = %+v", items)
	}

	// Fail one directly, then requeue it from the command line.
	st, err := state.Open(filepath.Join(dataDir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Fail(context.Background(), "jNQXAC9IVRw", "no captions available"); err != nil {
		t.Fatal(err)
	}
	st.Close()

	out, err = runCmd(t, "-config", cfgPath, "backlog", "failed")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "jNQXAC9IVRw") || !strings.Contains(out, "no captions available") {
		t.Errorf("failed output:\n%s", out)
	}

	out, err = runCmd(t, "-config", cfgPath, "backlog", "retry-failed")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "requeued 1 videos") {
		t.Errorf("retry output:\n%s", out)
	}

	if _, err := runCmd(t, "-config", cfgPath, "backlog", "shuffle"); err == nil {
		t.Error("unknown backlog command: expected error")
	}
}

func TestRun_ChannelsList(t *testing.T) {
	cfgPath, dataDir := writeConfig(t)

	out, err := runCmd(t, "-config", cfgPath, "channels", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no channels in") {
		t.Errorf("empty registry output:\n%s", out)
	}

	csv := "channel_id,channel_name,lang,notes\nUC123,テストチャンネル,ja,\n"
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "channels.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = runCmd(t, "-config", cfgPath, "channels", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "UC123") || !strings.Contains(out, "テストチャンネル") {
		t.Errorf("list output:\n%s", out)
	}
}

func TestRun_Models(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := runCmd(t, "-config", cfgPath, "models")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"google/gemini-2.5-flash", "qwen/qwen-turbo", "templates:", "strategist"} {
		if !strings.Contains(out, want) {
			t.Errorf("models output lacks %q:\n%s", want, out)
		}
	}
}

func TestRun_Usage_Empty(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := runCmd(t, "-config", cfgPath, "usage", "-days", "7")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Last 7 days: 0 calls") {
		t.Errorf("usage output:\n%s", out)
	}
	if _, err := runCmd(t, "-config", cfgPath, "usage", "-by", "channel"); err == nil {
		t.Error("unknown breakdown: expected error")
	}
}

func TestRun_Clean(t *testing.T) {
	dir := t.TempDir()
	note := filepath.Join(dir, "abc.md")
	body := "---\ntitle: x\n---\n# x\n\n" + transcript.SectionHeading + "\n\n" +
		transcript.Lines([]transcript.Fragment{{Start: 1, Text: "えーと 今日は"}, {Start: 5, Text: "晴れです"}})
	if err := os.WriteFile(note, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCmd(t, "clean", note); err != nil {
		t.Fatalf("clean: %v", err)
	}
	got, err := os.ReadFile(transcript.CleanedPath(note))
	if err != nil {
		t.Fatal(err)
	}
	if want := transcript.Normalize(body, false); string(got) != want {
		t.Errorf("cleaned = %q, want %q", got, want)
	}
	if strings.Contains(string(got), "[00:00:01]") || strings.Contains(string(got), "title:") {
		t.Errorf("cleaned text kept markup: %q", got)
	}

	blank := filepath.Join(dir, "blank.md")
	if err := os.WriteFile(blank, []byte("  \n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCmd(t, "clean", blank); !errors.Is(err, summary.ErrEmptyTranscript) {
		t.Errorf("blank note: err = %v", err)
	}
}

func TestRun_ProcessChecksTemplate(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := runCmd(t, "-config", cfgPath, "process", "-template", "no_such_template", "dQw4w9WgXcQ")
	if !errors.Is(err, config.ErrUnknownTemplate) {
		t.Errorf("err = %v, want ErrUnknownTemplate", err)
	}

	a := &app{cfg: config.Default()}
	for _, name := range []string{"", "strategist", "supereditor", "supereditor_en"} {
		if err := checkTemplate(a, name); err != nil {
			t.Errorf("checkTemplate(%q) = %v", name, err)
		}
	}
}
