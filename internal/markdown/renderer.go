// Package markdown renders note content to HTML.
package markdown

import (
	"bytes"
	"html/template"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

// Option configures a Renderer.
type Option func(*options)

type options struct {
	unsafe bool
	style  string
}

// WithUnsafeHTML passes raw HTML in note content through to the output.
func WithUnsafeHTML() Option {
	return func(o *options) { o.unsafe = true }
}

// WithStyle selects the chroma style used for code blocks.
func WithStyle(name string) Option {
	return func(o *options) { o.style = name }
}

// Renderer handles Markdown rendering.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a new Markdown renderer with GFM and code highlighting.
// Raw HTML is dropped unless WithUnsafeHTML is given.
func NewRenderer(opts ...Option) *Renderer {
	o := options{style: "github"}
	for _, opt := range opts {
		opt(&o)
	}

	htmlOpts := []renderer.Option{html.WithHardWraps(), html.WithXHTML()}
	if o.unsafe {
		htmlOpts = append(htmlOpts, html.WithUnsafe())
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM, // Table, Strikethrough, TaskList, Autolink
			highlighting.NewHighlighting(
				highlighting.WithStyle(o.style),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(htmlOpts...),
	)

	return &Renderer{
		md: md,
	}
}

// Render converts Markdown to HTML.
func (r *Renderer) Render(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var pageTemplate = template.Must(template.New("note").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
<h1>{{.Title}}</h1>
{{.Body}}
</article>
</body>
</html>
`))

// RenderPage renders Markdown into a standalone HTML document titled title.
func (r *Renderer) RenderPage(title string, source []byte) ([]byte, error) {
	body, err := r.Render(source)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
