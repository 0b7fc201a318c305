// Package publish writes finished notes to disk and ships them to the
// configured destinations.
package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/tubedigest/internal/transcript"
	"github.com/nugget/tubedigest/internal/youtube"
)

// Subdirectories of the notes directory.
const (
	TranscriptsDir = "transcripts"
	SummariesDir   = "summaries"
)

// FailureSummary is the summary section written when generation fails,
// so the note is kept and can be completed by hand.
func FailureSummary(err error) string {
	return fmt.Sprintf("## 要約\n\n※要約の生成に失敗しました: %v\n\n手動で要約を追加してください。", err)
}

// Notes lays out and writes note files under a root directory:
//
//	transcripts/<id>.md           transcript note
//	transcripts/<id>.json         raw caption dump
//	transcripts/<id>_cleaned.txt  normalized transcript
//	summaries/<id>.md             summary with front matter
type Notes struct {
	root string
	now  func() time.Time
}

// NewNotes creates a writer rooted at dir.
func NewNotes(dir string) *Notes {
	return &Notes{root: dir, now: time.Now}
}

// Root returns the notes directory.
func (n *Notes) Root() string { return n.root }

// TranscriptPath returns the transcript note path for a video.
func (n *Notes) TranscriptPath(id string) string {
	return filepath.Join(n.root, TranscriptsDir, id+".md")
}

// SummaryPath returns the summary note path for a video.
func (n *Notes) SummaryPath(id string) string {
	return filepath.Join(n.root, SummariesDir, id+".md")
}

// Rel returns path relative to the notes root with forward slashes, as
// sinks expect.
func (n *Notes) Rel(path string) string {
	rel, err := filepath.Rel(n.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

type transcriptDump struct {
	VideoID     string                `json:"video_id"`
	Title       string                `json:"title"`
	Channel     string                `json:"channel"`
	PublishedAt string                `json:"published_at"`
	Duration    string                `json:"duration"`
	Thumbnail   string                `json:"thumbnail"`
	FetchedAt   string                `json:"fetched_at"`
	Transcript  []transcript.Fragment `json:"transcript"`
}

// WriteTranscript writes the transcript note and the JSON caption dump,
// returning the note path.
func (n *Notes) WriteTranscript(note transcript.Note, v *youtube.Video) (string, error) {
	path := n.TranscriptPath(note.VideoID)
	if err := writeFile(path, []byte(note.Markdown())); err != nil {
		return "", err
	}

	dump := transcriptDump{
		VideoID:     note.VideoID,
		Title:       v.Title,
		Channel:     v.Channel,
		PublishedAt: v.PublishedAt,
		Duration:    v.RawDuration,
		Thumbnail:   v.Thumbnail,
		FetchedAt:   n.now().Format(time.RFC3339),
		Transcript:  note.Fragments,
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript dump: %w", err)
	}
	if err := writeFile(strings.TrimSuffix(path, ".md")+".json", data); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCleaned writes normalized text next to the note it came from and
// returns its path.
func (n *Notes) WriteCleaned(notePath, cleaned string) (string, error) {
	path := transcript.CleanedPath(notePath)
	if err := writeFile(path, []byte(cleaned)); err != nil {
		return "", err
	}
	return path, nil
}

type frontMatter struct {
	Title        string   `yaml:"title"`
	VideoID      string   `yaml:"video_id"`
	Channel      string   `yaml:"channel"`
	PublishedAt  string   `yaml:"published_at"`
	YouTubeURL   string   `yaml:"youtube_url"`
	Thumbnail    string   `yaml:"thumbnail"`
	SummarizedAt string   `yaml:"summarized_at"`
	Models       []string `yaml:"models,omitempty"`
	Status       string   `yaml:"status,omitempty"`
}

// SummaryMeta is the generation detail recorded in a summary's front
// matter.
type SummaryMeta struct {
	Models []string
	Status string
}

// SummaryNote renders a summary note: YAML front matter, then the
// summary Markdown.
func (n *Notes) SummaryNote(v *youtube.Video, summary string, meta SummaryMeta) ([]byte, error) {
	published := v.PublishedAt
	if len(published) > 10 {
		published = published[:10]
	}
	fm, err := yaml.Marshal(frontMatter{
		Title:        v.Title,
		VideoID:      v.ID,
		Channel:      v.Channel,
		PublishedAt:  published,
		YouTubeURL:   youtube.WatchURL(v.ID),
		Thumbnail:    v.Thumbnail,
		SummarizedAt: n.now().Format(time.RFC3339),
		Models:       meta.Models,
		Status:       meta.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(summary)
	if !strings.HasSuffix(summary, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// WriteSummary writes the summary note and returns its path and bytes.
func (n *Notes) WriteSummary(v *youtube.Video, summary string, meta SummaryMeta) (string, []byte, error) {
	data, err := n.SummaryNote(v, summary, meta)
	if err != nil {
		return "", nil, err
	}
	path := n.SummaryPath(v.ID)
	if err := writeFile(path, data); err != nil {
		return "", nil, err
	}
	return path, data, nil
}

// InsertSummary places summary after the note's title line, followed by
// a rule, leaving the rest of the note untouched. Notes without a title
// get the summary at the top.
func InsertSummary(note, summary string) string {
	lines := strings.Split(note, "\n")
	at := 0
	for i, line := range lines {
		if strings.HasPrefix(line, "# ") {
			at = min(i+2, len(lines))
			break
		}
	}
	section := summary + "\n\n---\n"
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, section)
	out = append(out, lines[at:]...)
	return strings.Join(out, "\n")
}

// AddSummaryToNote rewrites the note at path with summary inserted.
func AddSummaryToNote(path, summary string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return writeFile(path, []byte(InsertSummary(string(data), summary)))
}

// StripFrontMatter removes a leading YAML front matter block.
func StripFrontMatter(md string) string {
	if !strings.HasPrefix(md, "---\n") {
		return md
	}
	end := strings.Index(md[4:], "\n---\n")
	if end < 0 {
		return md
	}
	return strings.TrimLeft(md[4+end+5:], "\n")
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create note dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
