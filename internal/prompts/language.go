package prompts

import (
	"strings"

	"github.com/nugget/tubedigest/internal/langcheck"
)

// englishMarker in a template name selects English output.
const englishMarker = "_en"

// TargetLanguage returns the output language implied by a template name:
// English when the name contains "_en", Japanese otherwise.
func TargetLanguage(templateName string) langcheck.Language {
	if strings.Contains(templateName, englishMarker) {
		return langcheck.English
	}
	return langcheck.Japanese
}

const (
	japaneseDirective = "\n\nIMPORTANT: Output MUST be in Japanese. Do NOT use Korean characters."
	englishDirective  = "\n\nIMPORTANT: Output MUST be in English. Do NOT use Japanese or Korean characters."
)

// LanguageDirective returns the corrective suffix appended to the user
// message when a previous attempt came back in the wrong script.
func LanguageDirective(lang langcheck.Language) string {
	if lang == langcheck.English {
		return englishDirective
	}
	return japaneseDirective
}

// WithLanguageDirective returns p with the directive for lang appended
// to the user message. The system message is untouched.
func WithLanguageDirective(p Prompt, lang langcheck.Language) Prompt {
	p.User += LanguageDirective(lang)
	return p
}
