// Package langcheck flags generated text written in the wrong script.
package langcheck

// Language is a summary target language.
type Language string

// Supported target languages.
const (
	Japanese Language = "ja"
	English  Language = "en"
)

// Verdict reports whether text contains a script the target language
// does not allow, and which.
type Verdict struct {
	Violated bool
	Reason   string
}

// Reasons carried by a violated Verdict.
const (
	ReasonHangul   = "Korean (Hangul) characters detected"
	ReasonJapanese = "Japanese characters detected in English summary"
)

// Detect scans text for unwanted scripts. Hangul syllables are rejected
// for every target. English output additionally rejects Hiragana,
// Katakana and CJK unified ideographs.
func Detect(text string, target Language) Verdict {
	for _, r := range text {
		if isHangul(r) {
			return Verdict{Violated: true, Reason: ReasonHangul}
		}
	}
	if target != English {
		return Verdict{}
	}
	for _, r := range text {
		if isJapanese(r) {
			return Verdict{Violated: true, Reason: ReasonJapanese}
		}
	}
	return Verdict{}
}

func isHangul(r rune) bool {
	return r >= 0xAC00 && r <= 0xD7A3
}

func isJapanese(r rune) bool {
	switch {
	case r >= 0x3040 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF: // katakana
		return true
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	}
	return false
}
