// Package transcript turns caption fragments into Markdown notes and
// reduces those notes to the compact plain text fed to summary models.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Timestamp forms written by [Note.Markdown] and by older exports.
var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*\*\[\d{2}:\d{2}:\d{2}(?:\.\d+)?\]\*\*\s*`),
	regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}(?:\.\d+)?\]\s*`),
	regexp.MustCompile(`\[\d+(?:\.\d+)?\]\s*`),
}

var (
	mdImage = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	mdLink  = regexp.MustCompile(`\[.*?\]\(.*?\)`)
)

var englishFillers = []string{"um", "uh", "ah", "er", "hmm"}

// Japanese fillers are only dropped when wedged between CJK symbols and
// punctuation (U+3000–U+303F) on both sides. In running prose this rarely
// fires; keep it narrow until someone decides otherwise.
var japaneseFillers = []string{"えー", "あのー", "んー"}

// maxPasses bounds the fixed-point loop in Normalize. Each pass after the
// first can only delete text, so real input settles in one or two.
const maxPasses = 8

// Normalize reduces a transcript note (or any caption text) to a single
// logical line suitable for a model prompt. Everything up to and
// including a transcript heading is dropped. Unless keepTimestamps is
// set, timestamp markup is removed. Images, links, filler words and
// stuttered repeats are removed, whitespace is collapsed, and each
// speaker-turn marker (">>") starts a new paragraph.
//
// The result is a fixed point of a single pass, so Normalize is
// idempotent.
func Normalize(raw string, keepTimestamps bool) string {
	text := raw
	for range maxPasses {
		next := cleanPass(afterSectionMarker(text), keepTimestamps)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func cleanPass(text string, keepTimestamps bool) string {
	if !keepTimestamps {
		text = stripTimestamps(text)
	}
	text = mdImage.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "")
	text = removeEnglishFillers(text)
	text = removeJapaneseFillers(text)
	text = collapseStutter(text)
	text = collapseWhitespace(text)
	text = strings.ReplaceAll(text, " >>", "\n\n>>")
	return strings.TrimSpace(text)
}

// afterSectionMarker returns the text following the transcript heading,
// or raw unchanged when there is none. A line equal to SectionHeading wins
// over any other heading, so a note titled "Transcript" still keeps its
// metadata out of the result.
func afterSectionMarker(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == SectionHeading {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	for i, line := range lines {
		if isSectionMarker(line) {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return raw
}

// isSectionMarker reports whether line is an ATX heading whose whole title
// is 文字起こし or "transcript". Hashtags such as "#文字起こし" are not
// headings.
func isSectionMarker(line string) bool {
	line = strings.TrimSpace(line)
	rest := strings.TrimLeft(line, "#")
	if rest == line || len(line)-len(rest) > 6 {
		return false
	}
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return false
	}
	title := strings.TrimSpace(rest)
	return title == "文字起こし" || strings.EqualFold(title, "transcript")
}

func stripTimestamps(text string) string {
	for _, re := range timestampPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// segment is a maximal run of word runes or of non-word runes.
type segment struct {
	text string
	word bool
}

func segments(text string) []segment {
	var out []segment
	start := 0
	var inWord bool
	for i, r := range text {
		w := isWordRune(r)
		if i == 0 {
			inWord = w
			continue
		}
		if w != inWord {
			out = append(out, segment{text: text[start:i], word: inWord})
			start = i
			inWord = w
		}
	}
	if start < len(text) {
		out = append(out, segment{text: text[start:], word: inWord})
	}
	return out
}

func removeEnglishFillers(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range segments(text) {
		if seg.word && isEnglishFiller(seg.text) {
			continue
		}
		b.WriteString(seg.text)
	}
	return b.String()
}

func isEnglishFiller(word string) bool {
	for _, f := range englishFillers {
		if strings.EqualFold(word, f) {
			return true
		}
	}
	return false
}

func isCJKPunct(r rune) bool {
	return r >= 0x3000 && r <= 0x303F
}

func removeJapaneseFillers(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(runes); {
		if i > 0 && isCJKPunct(runes[i-1]) {
			if n := japaneseFillerAt(runes, i); n > 0 && i+n < len(runes) && isCJKPunct(runes[i+n]) {
				i += n
				continue
			}
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

// japaneseFillerAt returns the rune length of the filler starting at i, or 0.
func japaneseFillerAt(runes []rune, i int) int {
	for _, f := range japaneseFillers {
		fr := []rune(f)
		if i+len(fr) > len(runes) {
			continue
		}
		if string(runes[i:i+len(fr)]) == f {
			return len(fr)
		}
	}
	return 0
}

func isBlank(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// collapseStutter keeps the first of a run of case-insensitively equal
// words separated only by whitespace: "I I I think" becomes "I think".
func collapseStutter(text string) string {
	segs := segments(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		b.WriteString(seg.text)
		if !seg.word {
			continue
		}
		for i+2 < len(segs) && isBlank(segs[i+1].text) && segs[i+2].word && strings.EqualFold(segs[i+2].text, seg.text) {
			i += 2
		}
	}
	return b.String()
}

func collapseWhitespace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

// CleanedPath returns the sibling path used to persist normalized text
// for a transcript note: "notes/abc.md" becomes "notes/abc_cleaned.txt".
func CleanedPath(notePath string) string {
	base := strings.TrimSuffix(notePath, ".md")
	return base + "_cleaned.txt"
}
