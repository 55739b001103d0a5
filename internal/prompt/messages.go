package prompt

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// SystemPrompt frames the model as a documentation writer.
const SystemPrompt = "You are a technical documentation expert. Generate clear, comprehensive, and well-structured documentation in markdown format. Be thorough but concise."

// Project is the overview repeated at the top of every batch so each
// request carries whole-repository context.
type Project struct {
	Name       string
	TotalFiles int
	TotalLines int
	Languages  map[string]int
	// Structure is a pre-rendered directory outline.
	Structure string
	// Dependencies maps an ecosystem to its declared dependency names.
	Dependencies map[string][]string
}

// NewProject tallies files, lines and languages across summaries.
func NewProject(name string, summaries []Summary) Project {
	p := Project{Name: name, TotalFiles: len(summaries), Languages: map[string]int{}}
	for _, s := range summaries {
		lang := s.Language
		if lang == "" {
			lang = string(s.Category)
		}
		p.Languages[lang]++
		p.TotalLines += s.Lines
	}
	return p
}

// LanguageLine renders language counts, most common first.
func (p Project) LanguageLine() string {
	type kv struct {
		lang string
		n    int
	}
	list := make([]kv, 0, len(p.Languages))
	for l, n := range p.Languages {
		list = append(list, kv{l, n})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n > list[j].n
		}
		return list[i].lang < list[j].lang
	})
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = fmt.Sprintf("%s (%d)", e.lang, e.n)
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, ", ")
}

// Messages is a rendered request: one system and one user message.
type Messages struct {
	System string
	User   string
}

// BuildMessages renders batch b (zero-based index, total batches) into the
// request text. Its scaffolding is paid for by Budget.ReservedTokens.
func BuildMessages(b Batch, total int, p Project) Messages {
	part := fmt.Sprintf("part %d of %d", b.Index+1, total)

	var sb strings.Builder
	sb.WriteString("[INSTRUCTIONS]\n")
	sb.WriteString("Write developer documentation for the source files below, ")
	sb.WriteString(part)
	sb.WriteString(" of this project. Describe what each file is responsible for, its main functions and types, and how the files relate to each other. Do not invent APIs that are not listed.\n\n")

	sb.WriteString("[PROJECT]\n")
	fmt.Fprintf(&sb, "Name: %s\n", p.Name)
	fmt.Fprintf(&sb, "Total files: %d\n", p.TotalFiles)
	fmt.Fprintf(&sb, "Total lines: %d\n", p.TotalLines)
	fmt.Fprintf(&sb, "Languages: %s\n", p.LanguageLine())
	if len(p.Dependencies) > 0 {
		sb.WriteString("Dependencies:\n")
		for _, eco := range slices.Sorted(maps.Keys(p.Dependencies)) {
			fmt.Fprintf(&sb, "  %s: %s\n", eco, strings.Join(p.Dependencies[eco], ", "))
		}
	}
	if p.Structure != "" {
		sb.WriteString("Structure:\n")
		sb.WriteString(p.Structure)
		if !strings.HasSuffix(p.Structure, "\n") {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")

	sb.WriteString("[REFERENCE FILES]\n")
	for _, s := range b.Summaries {
		sb.WriteString(Render(s))
		sb.WriteString("\n")
	}

	sb.WriteString("[TASK]\n")
	sb.WriteString("Based on the reference files above, produce the markdown documentation for ")
	sb.WriteString(part)
	sb.WriteString(". Start with a level-two heading naming the area these files cover.\n")

	return Messages{System: SystemPrompt, User: sb.String()}
}
