package pipeline

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/codeloom-cli/internal/ai"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
)

// SectionSeparator joins sections in the final document.
const SectionSeparator = "\n\n---\n\n"

// CompletionResult is the outcome of one batch. Success is Err == nil.
type CompletionResult struct {
	Batch    int
	Text     string
	Err      error
	Attempts int
	Usage    ai.Usage
}

// Section is one batch's contribution to the document.
type Section struct {
	Batch  int      `json:"batch"`
	Paths  []string `json:"paths"`
	Text   string   `json:"text"`
	Failed bool     `json:"failed,omitempty"`
	Cause  string   `json:"cause,omitempty"`
}

// Document is the merged output of a run.
type Document struct {
	Sections []Section `json:"sections"`
	Text     string    `json:"text"`
}

// Placeholders counts failed sections.
func (d Document) Placeholders() int {
	n := 0
	for _, s := range d.Sections {
		if s.Failed {
			n++
		}
	}
	return n
}

// Merge joins results in batch order. A failed or missing result becomes a
// "section unavailable" placeholder naming the files it covered. The output
// depends only on its inputs.
func Merge(batches []prompt.Batch, results []CompletionResult) Document {
	byBatch := make(map[int]CompletionResult, len(results))
	for _, r := range results {
		byBatch[r.Batch] = r
	}

	total := len(batches)
	doc := Document{Sections: make([]Section, 0, total)}
	parts := make([]string, 0, total)
	for i, b := range batches {
		sec := Section{Batch: i, Paths: b.Paths()}
		r, ok := byBatch[i]
		switch {
		case !ok:
			sec.Failed = true
			sec.Cause = ErrNotCompleted.Error()
		case r.Err != nil:
			sec.Failed = true
			sec.Cause = r.Err.Error()
		default:
			sec.Text = strings.TrimSpace(r.Text)
		}
		if sec.Failed {
			sec.Text = placeholder(i, total, sec.Paths, sec.Cause)
		}
		doc.Sections = append(doc.Sections, sec)
		parts = append(parts, sec.Text)
	}
	doc.Text = strings.Join(parts, SectionSeparator)
	if doc.Text != "" {
		doc.Text += "\n"
	}
	return doc
}

func placeholder(i, total int, paths []string, cause string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Section unavailable (batch %d of %d)\n\n", i+1, total)
	sb.WriteString("Documentation for these files could not be generated:\n\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "- `%s`\n", p)
	}
	fmt.Fprintf(&sb, "\nCause: %s", cause)
	return sb.String()
}
