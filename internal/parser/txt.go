package parser

import (
	"context"
	"strings"

	"github.com/KaramelBytes/codeloom-cli/internal/files"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
)

type txtParser struct{}

func (txtParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".txt")
}

func (txtParser) Parse(content []byte) (string, error) {
	return string(content), nil
}

// textStrategy handles markup and plaintext: no symbols, only an excerpt.
type textStrategy struct {
	maxExcerpt int
	normalize  bool
}

func (t textStrategy) extract(_ context.Context, e files.Entry, text string) (prompt.Summary, []Warning) {
	if t.normalize {
		if out, err := Normalize(e.Path, []byte(text)); err == nil {
			text = out
		}
	}
	return excerptOnly(e, text, t.maxExcerpt), nil
}
