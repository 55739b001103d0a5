// Package prompt turns structural summaries into token-bounded batches and
// renders each batch into the messages sent to a completion provider.
package prompt

import (
	"strings"

	"github.com/KaramelBytes/codeloom-cli/internal/files"
)

// PlaceholderNote is the text shown for a file that could not be fit into
// any batch.
const PlaceholderNote = "too large to summarize"

const truncationMarker = "... (truncated)"

// Summary is the compact digest of one file: its declared symbols and a
// bounded content excerpt.
type Summary struct {
	Path        string         `json:"path"`
	Language    string         `json:"language,omitempty"`
	Category    files.Category `json:"category"`
	Functions   []string       `json:"functions,omitempty"`
	Classes     []string       `json:"classes,omitempty"`
	Imports     []string       `json:"imports,omitempty"`
	Excerpt     string         `json:"excerpt,omitempty"`
	Truncated   bool           `json:"truncated,omitempty"`
	Placeholder bool           `json:"placeholder,omitempty"`
	// Lines counts the file's lines for the project overview. It is not
	// rendered.
	Lines int `json:"lines,omitempty"`
}

// Placeholder returns a stand-in for s that keeps only its identity.
func Placeholder(s Summary) Summary {
	return Summary{
		Path:        s.Path,
		Language:    s.Language,
		Category:    s.Category,
		Placeholder: true,
	}
}

// Render returns the canonical text of one item. The same text is counted
// during assembly and sent in the prompt.
func Render(s Summary) string {
	var sb strings.Builder
	sb.WriteString("--- File: ")
	sb.WriteString(s.Path)
	if s.Language != "" {
		sb.WriteString(" (")
		sb.WriteString(s.Language)
		sb.WriteString(")")
	}
	sb.WriteString(" ---\n")
	if s.Placeholder {
		sb.WriteString("[omitted: ")
		sb.WriteString(PlaceholderNote)
		sb.WriteString("]\n")
		return sb.String()
	}
	writeList(&sb, "Functions", s.Functions)
	writeList(&sb, "Classes", s.Classes)
	writeList(&sb, "Imports", s.Imports)
	if s.Excerpt != "" {
		sb.WriteString("Excerpt:\n")
		sb.WriteString(s.Excerpt)
		if !strings.HasSuffix(s.Excerpt, "\n") {
			sb.WriteString("\n")
		}
	}
	if s.Truncated {
		sb.WriteString(truncationMarker)
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label)
	sb.WriteString(": ")
	sb.WriteString(strings.Join(items, ", "))
	sb.WriteString("\n")
}
