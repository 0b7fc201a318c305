package transcript

import (
	"fmt"
	"math"
	"strings"
)

// Fragment is one caption cue. Fragments are kept in caption order,
// which is also chronological order.
type Fragment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// SectionHeading introduces the transcript body in a note. Normalize
// discards everything above it.
const SectionHeading = "## 文字起こし"

// FormatTimestamp renders seconds as HH:MM:SS, truncating fractions.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// Lines renders fragments as bold-timestamped paragraphs.
func Lines(fragments []Fragment) string {
	var b strings.Builder
	for _, f := range fragments {
		fmt.Fprintf(&b, "**[%s]** %s\n\n", FormatTimestamp(f.Start), f.Text)
	}
	return b.String()
}

// Note is the Markdown document written for each fetched video. The
// summary pipeline reads it back through Normalize.
type Note struct {
	Title       string
	VideoID     string
	Channel     string
	Published   string // RFC 3339 or YYYY-MM-DD
	URL         string
	Thumbnail   string
	Description string
	Model       string
	Fragments   []Fragment
}

// Markdown renders the note: title, thumbnail, metadata, formatted
// description, then the timestamped transcript under SectionHeading.
func (n Note) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", n.Title)
	if n.Thumbnail != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", n.Title, n.Thumbnail)
	}
	if n.VideoID != "" {
		fmt.Fprintf(&b, "![](https://www.youtube.com/watch?v=%s)\n\n", n.VideoID)
	}

	b.WriteString("## メタ情報\n\n")
	fmt.Fprintf(&b, "- **チャンネル**: %s\n", n.Channel)
	fmt.Fprintf(&b, "- **公開日**: %s\n", datePart(n.Published))
	fmt.Fprintf(&b, "- **URL**: [%s](%s)\n", n.URL, n.URL)
	if n.Model != "" {
		fmt.Fprintf(&b, "- **要約モデル**: %s\n", n.Model)
	}
	b.WriteString("\n")

	if desc := strings.TrimSpace(n.Description); desc != "" {
		b.WriteString("## 動画概要\n\n")
		b.WriteString(FormatDescription(desc))
		b.WriteString("\n\n")
	}

	b.WriteString(SectionHeading + "\n\n")
	b.WriteString(Lines(n.Fragments))
	return b.String()
}

func datePart(published string) string {
	if len(published) >= 10 {
		return published[:10]
	}
	return published
}
