package channels

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const registry = `channel_id,channel_name,lang,notes
UCaaaaaaaaaaaaaaaaaaaaaa,Gophers,,weekly
# UCcommented,Old Channel,en,
UCbbbbbbbbbbbbbbbbbbbbbb,Rustaceans,en-us,

UCcccccccccccccccccccccc,,ja,
`

func TestParse(t *testing.T) {
	chs, err := Parse(strings.NewReader(registry))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Channel{
		{ID: "UCaaaaaaaaaaaaaaaaaaaaaa", Name: "Gophers", Lang: "ja", Notes: "weekly"},
		{ID: "UCbbbbbbbbbbbbbbbbbbbbbb", Name: "Rustaceans", Lang: "en-US"},
		{ID: "UCcccccccccccccccccccccc", Lang: "ja"},
	}
	if !reflect.DeepEqual(chs, want) {
		t.Errorf("Parse =\n%+v\nwant\n%+v", chs, want)
	}
	if chs[2].DisplayName() != "UCcccccccccccccccccccccc" || chs[0].DisplayName() != "Gophers" {
		t.Error("DisplayName should fall back to the id")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"no id column": "name,lang\nx,ja\n",
		"bad lang":     "channel_id,lang\nUCx,not a language!\n",
		"duplicate":    "channel_id\nUCx\nUCx\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(in)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	chs, err := Parse(strings.NewReader(""))
	if err != nil || len(chs) != 0 {
		t.Errorf("Parse(empty) = %v, %v", chs, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	chs, err := Load(filepath.Join(dir, "missing.csv"))
	if err != nil || chs != nil {
		t.Errorf("missing file: %v, %v", chs, err)
	}

	path := filepath.Join(dir, "channels.csv")
	if err := os.WriteFile(path, []byte("\ufeff"+registry), 0o644); err != nil {
		t.Fatal(err)
	}
	chs, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chs) != 3 {
		t.Errorf("channels = %d, want 3 (BOM tolerated)", len(chs))
	}
}

func TestLanguages(t *testing.T) {
	c := Channel{Lang: "en"}
	got := c.Languages([]string{"ja", "en", "en-US"})
	want := []string{"en", "ja", "en-US"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Languages = %v, want %v", got, want)
	}
}

func TestLangFor(t *testing.T) {
	chs := []Channel{{ID: "UCa", Name: "A", Lang: "en"}}
	if LangFor(chs, "A") != "en" || LangFor(chs, "UCa") != "en" {
		t.Error("LangFor should match by id or name")
	}
	if LangFor(chs, "other") != DefaultLang {
		t.Error("LangFor should default")
	}
}
