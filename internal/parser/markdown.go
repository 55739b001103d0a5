package parser

import (
	"path"
	"strings"
)

// markupParser normalizes line endings and whitespace in markup and config
// formats so excerpts spend tokens on content.
type markupParser struct{}

var markupExts = map[string]bool{
	".md": true, ".markdown": true, ".html": true, ".xml": true,
	".yml": true, ".yaml": true, ".json": true, ".toml": true,
	".ini": true, ".cfg": true, ".css": true, ".scss": true, ".sass": true,
}

func (markupParser) CanParse(filename string) bool {
	return markupExts[strings.ToLower(path.Ext(filename))]
}

func (markupParser) Parse(content []byte) (string, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")
	// Collapse >2 consecutive newlines to exactly two
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text, nil
}
