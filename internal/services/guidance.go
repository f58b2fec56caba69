package services

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
)

// Guidance renders operator-facing markdown, such as the configuration error explanation, into HTML.
// Raw HTML in the source is not passed through, so the output is safe to insert into the page.
type Guidance struct {
	md goldmark.Markdown
}

// NewGuidance creates a Guidance renderer that highlights fenced code blocks with the given chroma style.
func NewGuidance(style string) Guidance {
	if style == "" {
		style = "github"
	}
	return Guidance{
		md: goldmark.New(
			goldmark.WithExtensions(
				highlighting.NewHighlighting(
					highlighting.WithStyle(style),
				),
			),
		),
	}
}

// Render converts markdown to HTML.
func (g Guidance) Render(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	// goldmark escapes raw HTML unless html.WithUnsafe is set.
	return template.HTML(buf.String()), nil
}
