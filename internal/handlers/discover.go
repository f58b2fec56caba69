package handlers

import (
	"bytes"
	"fmt"
	"html/template"

	"golang.org/x/net/html"
)

// elementIDs renders the home page with empty data and returns the set of element ids it declares.
func elementIDs(tmpl *template.Template) (map[string]bool, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "home.html", homePageData{}); err != nil {
		return nil, fmt.Errorf("failed to execute home.html template: %w", err)
	}

	ids := make(map[string]bool)
	z := html.NewTokenizer(&buf)
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF is the only error a tokenizer over an in-memory buffer can report.
			return ids, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			for _, attr := range z.Token().Attr {
				if attr.Key == "id" && attr.Val != "" {
					ids[attr.Val] = true
				}
			}
		}
	}
}
