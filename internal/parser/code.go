package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/KaramelBytes/codeloom-cli/internal/files"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
)

// codeStrategy extracts declarations from a syntax tree. Names inside
// strings and comments are never captured.
type codeStrategy struct {
	maxExcerpt int
}

type capture struct {
	kind  string
	name  string
	start uint32
}

func (cs codeStrategy) extract(ctx context.Context, e files.Entry, text string) (prompt.Summary, []Warning) {
	s := excerptOnly(e, text, cs.maxExcerpt)
	g, ok := grammars[e.Language]
	if !ok {
		return s, nil
	}

	caps, err := parseCaptures(ctx, g, []byte(text))
	if err != nil {
		return s, []Warning{{Path: e.Path, Message: err.Error()}}
	}
	s.Functions, s.Classes, s.Imports = group(caps)
	return s, nil
}

func parseCaptures(ctx context.Context, g *grammar, src []byte) ([]capture, error) {
	q, err := g.compiled()
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	root, err := sitter.ParseCtx(ctx, src, g.lang)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("parse: empty tree")
	}
	if root.HasError() {
		return nil, fmt.Errorf("syntax errors; symbols not extracted")
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var out []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			name := cleanName(c.Node.Content(src))
			if name == "" {
				continue
			}
			out = append(out, capture{
				kind:  q.CaptureNameForId(c.Index),
				name:  name,
				start: c.Node.StartByte(),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out, nil
}

// group splits captures by kind, keeping the first occurrence of each name.
func group(caps []capture) (functions, classes, imports []string) {
	seen := map[string]map[string]bool{
		captureFunction: {},
		captureClass:    {},
		captureImport:   {},
	}
	for _, c := range caps {
		set, ok := seen[c.kind]
		if !ok || set[c.name] {
			continue
		}
		set[c.name] = true
		switch c.kind {
		case captureFunction:
			functions = append(functions, c.name)
		case captureClass:
			classes = append(classes, c.name)
		case captureImport:
			imports = append(imports, c.name)
		}
	}
	return functions, classes, imports
}

// cleanName strips quoting from import paths and collapses whitespace.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`<>")
	return strings.Join(strings.Fields(s), " ")
}
