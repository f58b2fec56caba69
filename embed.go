package promptstream

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the prompt page. These templates
// are organized in a directory structure that separates layouts, pages, and partial views.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded static assets, the stylesheet and the script that applies patches
// streamed by the server to the page.
//
//go:embed static/*
var StaticFS embed.FS
