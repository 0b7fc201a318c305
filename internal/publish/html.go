package publish

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML renders summary Markdown to a standalone HTML page with no
// external resources.
func RenderHTML(title, md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(StripFrontMatter(md)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.6;">
%s
</body></html>`, html.EscapeString(title), buf.String()), nil
}
