package prompts

import (
	"strings"
)

// DefaultSystemMessage is used when a template carries no system message.
const DefaultSystemMessage = "You are a helpful assistant."

// Template is a named summary prompt: a system message plus ordered tone
// and output instructions. Templates are looked up by name from the
// configured table; see config.Config.Template.
type Template struct {
	Name               string   `yaml:"-"`
	Description        string   `yaml:"description,omitempty"`
	SystemMessage      string   `yaml:"system_message"`
	ToneInstructions   []string `yaml:"tone_instructions"`
	OutputInstructions []string `yaml:"output_instructions"`
}

// Prompt is a composed system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Section delimiters in the user message. Downstream templates refer to
// these headings, so all four are always present and always in this order.
const (
	toneHeading        = "# === Tone & Manner ==="
	outputHeading      = "# === Output Instructions ==="
	descriptionHeading = "# === Video Description ==="
	transcriptHeading  = "# === Transcript ==="
)

// Compose builds the system and user messages for a summary request.
// The description may be empty; its section is still emitted.
func Compose(t Template, transcript, description string) Prompt {
	system := t.SystemMessage
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemMessage
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(toneHeading + "\n")
	b.WriteString(strings.Join(t.ToneInstructions, "\n"))
	b.WriteString("\n\n")
	b.WriteString(outputHeading + "\n")
	b.WriteString(strings.Join(t.OutputInstructions, "\n"))
	b.WriteString("\n\n")
	b.WriteString(descriptionHeading + "\n")
	b.WriteString(description)
	b.WriteString("\n\n")
	b.WriteString(transcriptHeading + "\n")
	b.WriteString(transcript)
	b.WriteString("\n")

	return Prompt{System: system, User: b.String()}
}
