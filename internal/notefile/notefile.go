// Package notefile converts notes to and from Markdown files with YAML front matter.
package notefile

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jun/notabl/backend/internal/model"
)

const (
	Ext       = ".md"
	delimiter = "---"
)

// FrontMatter is the metadata block at the top of an exported note.
type FrontMatter struct {
	ID         string           `yaml:"id,omitempty"`
	Title      string           `yaml:"title"`
	Summary    string           `yaml:"summary,omitempty"`
	SourceType model.SourceType `yaml:"source_type,omitempty"`
	SourceURL  string           `yaml:"source_url,omitempty"`
	Starred    bool             `yaml:"starred,omitempty"`
	CreatedAt  time.Time        `yaml:"created_at,omitempty"`
	UpdatedAt  time.Time        `yaml:"updated_at,omitempty"`
}

// Document is a parsed note file.
type Document struct {
	FrontMatter
	Content string
}

// Marshal renders a note as Markdown with front matter.
func Marshal(n model.Note) ([]byte, error) {
	fm := FrontMatter{
		ID:         n.ID,
		Title:      n.Title,
		Summary:    n.Summary,
		SourceType: n.SourceType,
		SourceURL:  n.SourceURL,
		Starred:    n.Starred,
		CreatedAt:  n.CreatedAt.UTC(),
		UpdatedAt:  n.UpdatedAt.UTC(),
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(fm); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	buf.WriteString(delimiter + "\n\n")
	buf.WriteString(n.Content)
	return buf.Bytes(), nil
}

// Unmarshal parses a Markdown file. Files without front matter are
// accepted; their title is taken from the first "# " heading.
func Unmarshal(data []byte) (*Document, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	doc := &Document{}
	if rest, ok := strings.CutPrefix(text, delimiter+"\n"); ok {
		end := strings.Index(rest, "\n"+delimiter+"\n")
		var header string
		switch {
		case end >= 0:
			header, text = rest[:end], rest[end+len(delimiter)+2:]
		case strings.HasSuffix(rest, "\n"+delimiter):
			header, text = strings.TrimSuffix(rest, "\n"+delimiter), ""
		default:
			return nil, fmt.Errorf("invalid frontmatter format")
		}
		if err := yaml.Unmarshal([]byte(header), &doc.FrontMatter); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	doc.Content = strings.TrimSpace(text)
	if doc.Title == "" {
		doc.Title = headingTitle(doc.Content)
	}
	return doc, nil
}

func headingTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if title, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(title)
		}
	}
	return ""
}

// FileName returns a file name for a note title, with the .md extension.
func FileName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "note"
	}
	if strings.HasSuffix(name, Ext) {
		return name
	}
	return name + Ext
}

// TitleFromFileName strips the .md extension.
func TitleFromFileName(name string) string {
	return strings.TrimSuffix(name, Ext)
}
