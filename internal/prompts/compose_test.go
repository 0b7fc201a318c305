package prompts

import (
	"strings"
	"testing"

	"github.com/nugget/tubedigest/internal/langcheck"
)

func TestCompose_SectionOrder(t *testing.T) {
	tmpl := Template{
		SystemMessage:      "system text",
		ToneInstructions:   []string{"tone one", "tone two"},
		OutputInstructions: []string{"output one"},
	}

	p := Compose(tmpl, "the transcript", "the description")

	if p.System != "system text" {
		t.Errorf("System = %q", p.System)
	}

	order := []string{
		toneHeading, "tone one\ntone two",
		outputHeading, "output one",
		descriptionHeading, "the description",
		transcriptHeading, "the transcript",
	}
	last := -1
	for _, want := range order {
		idx := strings.Index(p.User, want)
		if idx < 0 {
			t.Fatalf("User missing %q:\n%s", want, p.User)
		}
		if idx <= last {
			t.Errorf("%q out of order in:\n%s", want, p.User)
		}
		last = idx
	}
}

func TestCompose_EmptyDescriptionKeepsSection(t *testing.T) {
	p := Compose(Template{}, "text", "")
	for _, h := range []string{toneHeading, outputHeading, descriptionHeading, transcriptHeading} {
		if !strings.Contains(p.User, h) {
			t.Errorf("User missing heading %q", h)
		}
	}
	if !strings.Contains(p.User, descriptionHeading+"\n\n\n"+transcriptHeading) {
		t.Errorf("empty description section malformed:\n%q", p.User)
	}
}

func TestCompose_DefaultSystemMessage(t *testing.T) {
	p := Compose(Template{SystemMessage: "  "}, "x", "y")
	if p.System != DefaultSystemMessage {
		t.Errorf("System = %q, want %q", p.System, DefaultSystemMessage)
	}
}

func TestTargetLanguage(t *testing.T) {
	tests := []struct {
		name string
		want langcheck.Language
	}{
		{Strategist, langcheck.Japanese},
		{StrategistEN, langcheck.English},
		{InsightTemplate(SuperEditor), langcheck.Japanese},
		{InsightTemplate(SuperEditorEN), langcheck.English},
		{ChronologicalTemplate(SuperEditorEN), langcheck.English},
		{"", langcheck.Japanese},
	}
	for _, tt := range tests {
		if got := TargetLanguage(tt.name); got != tt.want {
			t.Errorf("TargetLanguage(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestWithLanguageDirective(t *testing.T) {
	base := Prompt{System: "s", User: "u"}

	ja := WithLanguageDirective(base, langcheck.Japanese)
	if !strings.HasSuffix(ja.User, "Output MUST be in Japanese. Do NOT use Korean characters.") {
		t.Errorf("ja directive = %q", ja.User)
	}
	en := WithLanguageDirective(base, langcheck.English)
	if !strings.HasSuffix(en.User, "Output MUST be in English. Do NOT use Japanese or Korean characters.") {
		t.Errorf("en directive = %q", en.User)
	}
	if base.User != "u" || ja.System != "s" {
		t.Error("directive should not alter the original prompt or the system message")
	}
}

func TestBuiltin(t *testing.T) {
	tmpls := Builtin()

	for _, family := range []string{SuperEditor, SuperEditorEN} {
		if !IsDualFamily(family) {
			t.Errorf("IsDualFamily(%q) = false", family)
		}
		for _, name := range []string{InsightTemplate(family), ChronologicalTemplate(family)} {
			if _, ok := tmpls[name]; !ok {
				t.Errorf("builtin table missing %q", name)
			}
		}
	}
	if IsDualFamily(Strategist) {
		t.Error("strategist should be single mode")
	}
	if _, ok := tmpls[DefaultTemplate]; !ok {
		t.Errorf("builtin table missing default %q", DefaultTemplate)
	}
	for name, tmpl := range tmpls {
		if tmpl.Name != name {
			t.Errorf("template %q has Name %q", name, tmpl.Name)
		}
		if len(tmpl.OutputInstructions) == 0 {
			t.Errorf("template %q has no output instructions", name)
		}
	}

	// Mutating one copy must not leak into the next.
	tmpls[Strategist] = Template{}
	if len(Builtin()[Strategist].OutputInstructions) == 0 {
		t.Error("Builtin should return a fresh table")
	}
}
