package publish

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/tubedigest/internal/transcript"
	"github.com/nugget/tubedigest/internal/youtube"
)

func testVideo() *youtube.Video {
	return &youtube.Video{
		ID:          "vid123",
		Title:       `Go "Concurrency": patterns`,
		Description: "About goroutines",
		Channel:     "Gophers",
		PublishedAt: "2025-05-01T10:00:00Z",
		RawDuration: "PT15M30S",
		Thumbnail:   "https://i/high.jpg",
	}
}

func testNotes(t *testing.T) *Notes {
	t.Helper()
	n := NewNotes(t.TempDir())
	n.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return n
}

func TestWriteTranscript(t *testing.T) {
	n := testNotes(t)
	v := testVideo()
	note := transcript.Note{
		Title:     v.Title,
		VideoID:   v.ID,
		Channel:   v.Channel,
		Published: v.PublishedAt,
		URL:       youtube.WatchURL(v.ID),
		Fragments: []transcript.Fragment{{Start: 1, Duration: 2, Text: "hello"}},
	}

	path, err := n.WriteTranscript(note, v)
	if err != nil {
		t.Fatalf("WriteTranscript: %v", err)
	}
	if path != filepath.Join(n.Root(), "transcripts", "vid123.md") {
		t.Errorf("path = %q", path)
	}
	md, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md), "**[00:00:01]** hello") {
		t.Errorf("note body:\n%s", md)
	}

	raw, err := os.ReadFile(filepath.Join(n.Root(), "transcripts", "vid123.json"))
	if err != nil {
		t.Fatal(err)
	}
	var dump transcriptDump
	if err := json.Unmarshal(raw, &dump); err != nil {
		t.Fatalf("dump is not JSON: %v", err)
	}
	if dump.VideoID != "vid123" || dump.Duration != "PT15M30S" || len(dump.Transcript) != 1 || dump.FetchedAt != "2026-10-15T09:00:00Z" {
		t.Errorf("dump = %+v", dump)
	}
}

func TestWriteCleaned(t *testing.T) {
	n := testNotes(t)
	notePath := n.TranscriptPath("vid123")
	path, err := n.WriteCleaned(notePath, "clean text")
	if err != nil {
		t.Fatal(err)
	}
	if path != strings.TrimSuffix(notePath, ".md")+"_cleaned.txt" {
		t.Errorf("path = %q", path)
	}
	if data, _ := os.ReadFile(path); string(data) != "clean text" {
		t.Errorf("content = %q", data)
	}
}

func TestSummaryNote_FrontMatter(t *testing.T) {
	n := testNotes(t)
	data, err := n.SummaryNote(testVideo(), "## 要約\n\n本文", SummaryMeta{Models: []string{"a/b", "c/d"}, Status: "success"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.HasPrefix(s, "---\n") {
		t.Fatalf("missing front matter:\n%s", s)
	}
	end := strings.Index(s[4:], "\n---\n")
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(s[4:4+end]), &fm); err != nil {
		t.Fatalf("front matter is not YAML: %v", err)
	}
	want := frontMatter{
		Title:        `Go "Concurrency": patterns`,
		VideoID:      "vid123",
		Channel:      "Gophers",
		PublishedAt:  "2025-05-01",
		YouTubeURL:   "https://www.youtube.com/watch?v=vid123",
		Thumbnail:    "https://i/high.jpg",
		SummarizedAt: "2026-10-15T09:00:00Z",
		Models:       []string{"a/b", "c/d"},
		Status:       "success",
	}
	if !reflect.DeepEqual(fm, want) {
		t.Errorf("front matter = %+v\nwant %+v", fm, want)
	}
	if StripFrontMatter(s) != "## 要約\n\n本文\n" {
		t.Errorf("body = %q", StripFrontMatter(s))
	}
}

func TestWriteSummary(t *testing.T) {
	n := testNotes(t)
	path, data, err := n.WriteSummary(testVideo(), "要約", SummaryMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if n.Rel(path) != "summaries/vid123.md" {
		t.Errorf("Rel = %q", n.Rel(path))
	}
	onDisk, _ := os.ReadFile(path)
	if string(onDisk) != string(data) {
		t.Error("returned bytes differ from file")
	}
}

func TestInsertSummary(t *testing.T) {
	note := "# Title\n\n![thumb](x)\n\n## メタ情報\n"
	got := InsertSummary(note, "## 要約\n\n本文")
	want := "# Title\n\n## 要約\n\n本文\n\n---\n\n![thumb](x)\n\n## メタ情報\n"
	if got != want {
		t.Errorf("InsertSummary =\n%q\nwant\n%q", got, want)
	}

	if got := InsertSummary("no heading", "S"); !strings.HasPrefix(got, "S\n\n---\n") {
		t.Errorf("no heading: %q", got)
	}

	// The summary sits above the transcript heading, so normalizing the
	// note ignores it.
	full := InsertSummary(transcript.Note{Title: "T", Fragments: []transcript.Fragment{{Text: "words"}}}.Markdown(), "要約本文")
	if cleaned := transcript.Normalize(full, false); cleaned != "words" {
		t.Errorf("Normalize after insert = %q", cleaned)
	}
}

func TestAddSummaryToNote(t *testing.T) {
	path := filepath.Join(t.TempDir(), "n.md")
	os.WriteFile(path, []byte("# T\n\nbody\n"), 0o644)
	if err := AddSummaryToNote(path, "S"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# T\n\nS\n\n---\n\nbody\n" {
		t.Errorf("note = %q", data)
	}
}

func TestFailureSummary(t *testing.T) {
	got := FailureSummary(errors.New("boom"))
	want := "## 要約\n\n※要約の生成に失敗しました: boom\n\n手動で要約を追加してください。"
	if got != want {
		t.Errorf("FailureSummary = %q", got)
	}
}

func TestStripFrontMatter(t *testing.T) {
	tests := []struct{ in, want string }{
		{"---\na: 1\n---\n\nbody", "body"},
		{"no front matter", "no front matter"},
		{"---\nunterminated", "---\nunterminated"},
	}
	for _, tt := range tests {
		if got := StripFrontMatter(tt.in); got != tt.want {
			t.Errorf("StripFrontMatter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	page, err := RenderHTML("A <title>", "---\nx: 1\n---\n\n## 要約\n\n- 要点は **「継続」** です\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<title>A &lt;title&gt;</title>",
		"<h2>要約</h2>",
		"<strong>「継続」</strong>",
		"<table>",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page lacks %q:\n%s", want, page)
		}
	}
	if strings.Contains(page, "x: 1") {
		t.Error("front matter should not be rendered")
	}
}
