// Package channels loads the registry of YouTube channels to poll.
//
// The registry is a CSV file with a header row:
//
//	channel_id,channel_name,lang,notes
//	UCxxxxxxxxxxxxxxxxxxxxxx,Some Channel,ja,
//
// Rows whose channel_id starts with "#" are comments. An empty lang
// defaults to Japanese.
package channels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLang is used when a row leaves lang empty.
const DefaultLang = "ja"

// Channel is one registry row.
type Channel struct {
	ID    string
	Name  string
	Lang  string
	Notes string
}

// DisplayName returns the name, or the id when the row has no name.
func (c Channel) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Languages returns caption language preferences for the channel: its
// own language first, then the fallbacks in order, without repeats.
func (c Channel) Languages(fallback []string) []string {
	out := []string{c.Lang}
	for _, l := range fallback {
		if l != c.Lang {
			out = append(out, l)
		}
	}
	return out
}

// Load reads the registry at path. A missing file yields an empty
// registry and no error.
func Load(path string) ([]Channel, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return chs, nil
}

// Parse reads registry CSV from r.
func Parse(r io.Reader) ([]Channel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := cols["channel_id"]; !ok {
		return nil, errors.New("header has no channel_id column")
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Channel
	seen := make(map[string]bool)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		id := field(rec, "channel_id")
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("line %d: duplicate channel %s", line, id)
		}
		seen[id] = true

		lang := field(rec, "lang")
		if lang == "" {
			lang = DefaultLang
		}
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("line %d: channel %s: bad lang %q: %w", line, id, lang, err)
		}

		out = append(out, Channel{
			ID:    id,
			Name:  field(rec, "channel_name"),
			Lang:  tag.String(),
			Notes: field(rec, "notes"),
		})
	}
	return out, nil
}

// LangFor returns the language of the channel with the given id or
// name, or DefaultLang when none matches.
func LangFor(chs []Channel, idOrName string) string {
	for _, c := range chs {
		if c.ID == idOrName || c.Name == idOrName {
			return c.Lang
		}
	}
	return DefaultLang
}
