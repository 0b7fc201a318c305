package summary

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Emphasis markers touching full-width brackets. CommonMark will not open
// or close "**" between a letter and punctuation without whitespace.
var (
	openEmphasis  = []string{"**「", "**（"}
	closeEmphasis = []string{"」**", "）**"}
)

// FixEmphasisSpacing inserts a space before "**「" and "**（" and after
// "」**" and "）**" unless whitespace or a text boundary is already there.
// Only spacing changes; applying it twice is the same as once.
func FixEmphasisSpacing(text string) string {
	if !strings.Contains(text, "**") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	for i := 0; i < len(text); {
		if m := markerAt(text, i, openEmphasis); m != "" {
			if i > 0 && !lastIsSpace(text[:i]) {
				b.WriteByte(' ')
			}
			b.WriteString(m)
			i += len(m)
			continue
		}
		if m := markerAt(text, i, closeEmphasis); m != "" {
			b.WriteString(m)
			i += len(m)
			if i < len(text) && !firstIsSpace(text[i:]) {
				b.WriteByte(' ')
			}
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

func markerAt(text string, i int, markers []string) string {
	for _, m := range markers {
		if strings.HasPrefix(text[i:], m) {
			return m
		}
	}
	return ""
}

func lastIsSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func firstIsSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}
