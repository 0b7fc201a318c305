package transcript

import "strings"

// Once one of these shows up, the rest of a description is channel
// boilerplate (social links, credits, gear lists).
var cutoffKeywords = []string{
	"---", "___", "===",
	"Follow us", "Subscribe", "Social Media",
	"Twitter", "Instagram", "Facebook", "TikTok",
	"Copyright", "All rights reserved",
	"Music by", "Gear used",
	"チャンネル登録", "SNS", "フォロー",
}

const (
	maxDescriptionLines = 20

	// MaxPromptDescription caps the description runes sent to a model.
	MaxPromptDescription = 1000
)

const (
	cutoffNotice   = "\n（※以降の定型文はカットされました）"
	truncateNotice = "\n（※長すぎるため以降は省略）"
)

// FormatDescription prepares a video description for a note. Blank lines
// are dropped, bare URL lines become links, and output stops at the first
// boilerplate keyword or after 20 lines, leaving a notice either way.
func FormatDescription(desc string) string {
	var out []string
	count := 0
	for _, line := range strings.Split(desc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if hasCutoffKeyword(line) {
			out = append(out, cutoffNotice)
			break
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			out = append(out, "["+line+"]("+line+")")
		} else {
			out = append(out, line)
		}
		count++
		if count >= maxDescriptionLines {
			out = append(out, truncateNotice)
			break
		}
	}
	return strings.Join(out, "\n")
}

func hasCutoffKeyword(line string) bool {
	for _, k := range cutoffKeywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}

// TruncateDescription bounds a description to MaxPromptDescription runes,
// marking the cut with "...".
func TruncateDescription(desc string) string {
	runes := []rune(desc)
	if len(runes) <= MaxPromptDescription {
		return desc
	}
	return string(runes[:MaxPromptDescription]) + "..."
}
