// Package parser produces structural summaries of source files: declared
// symbols from a syntax tree for code, and a normalized excerpt for
// everything else.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/KaramelBytes/codeloom-cli/internal/files"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
)

const (
	DefaultMaxExcerptChars       = 6000
	DefaultMaxParseBytes   int64 = 512 << 10

	sniffWindow = 8 << 10
)

// Parser normalizes the text of a document format.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte) (string, error)
}

var registry []Parser

// Register adds a normalizer to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// Normalize runs the first registered parser that accepts filename, or
// returns the content unchanged.
func Normalize(filename string, content []byte) (string, error) {
	for _, p := range registry {
		if p.CanParse(filename) {
			return p.Parse(content)
		}
	}
	return string(content), nil
}

func init() {
	Register(txtParser{})
	Register(markupParser{})
}

// Warning is a non-fatal problem met while extracting one file.
type Warning struct {
	Path    string
	Message string
}

// Options bound the work done per file.
type Options struct {
	// MaxExcerptChars caps the excerpt in runes, before any token accounting.
	MaxExcerptChars int
	// MaxParseBytes caps how much of a file is read. Larger files are not parsed.
	MaxParseBytes int64
}

// strategy extracts a summary for one category of file.
type strategy interface {
	extract(ctx context.Context, e files.Entry, text string) (prompt.Summary, []Warning)
}

// Extractor dispatches files to the strategy for their category. It holds
// no per-file state and is safe for concurrent use.
type Extractor struct {
	opts       Options
	strategies map[files.Category]strategy
}

func New(opts Options) *Extractor {
	if opts.MaxExcerptChars <= 0 {
		opts.MaxExcerptChars = DefaultMaxExcerptChars
	}
	if opts.MaxParseBytes <= 0 {
		opts.MaxParseBytes = DefaultMaxParseBytes
	}
	return &Extractor{
		opts: opts,
		strategies: map[files.Category]strategy{
			files.CategoryCode:      codeStrategy{maxExcerpt: opts.MaxExcerptChars},
			files.CategoryMarkup:    textStrategy{maxExcerpt: opts.MaxExcerptChars, normalize: true},
			files.CategoryPlaintext: textStrategy{maxExcerpt: opts.MaxExcerptChars},
		},
	}
}

// ExtractFile reads the entry from disk and summarizes it. A file that
// cannot be read is reported as unsupported with a warning, so every entry
// still yields exactly one result.
func (x *Extractor) ExtractFile(ctx context.Context, e files.Entry) (prompt.Summary, []Warning) {
	if !e.Category.Supported() {
		return unsupported(e), nil
	}
	fh, err := os.Open(e.AbsPath)
	if err != nil {
		return unsupported(e), []Warning{{Path: e.Path, Message: fmt.Sprintf("read: %v", err)}}
	}
	defer fh.Close()

	content, err := io.ReadAll(io.LimitReader(fh, x.opts.MaxParseBytes+1))
	if err != nil {
		return unsupported(e), []Warning{{Path: e.Path, Message: fmt.Sprintf("read: %v", err)}}
	}
	if int64(len(content)) > x.opts.MaxParseBytes {
		content = trimPartialRune(content[:x.opts.MaxParseBytes])
		if looksBinary(content) {
			return unsupported(e), nil
		}
		s := excerptOnly(e, string(content), x.opts.MaxExcerptChars)
		s.Truncated = true
		s.Lines = countLines(content)
		return s, []Warning{{
			Path:    e.Path,
			Message: fmt.Sprintf("larger than %d bytes; structure not extracted", x.opts.MaxParseBytes),
		}}
	}
	return x.Extract(ctx, e, content)
}

// Extract summarizes content already in memory.
func (x *Extractor) Extract(ctx context.Context, e files.Entry, content []byte) (prompt.Summary, []Warning) {
	st, ok := x.strategies[e.Category]
	if !ok || looksBinary(content) {
		return unsupported(e), nil
	}
	s, warnings := st.extract(ctx, e, string(content))
	s.Lines = countLines(content)
	return s, warnings
}

// countLines counts newline-terminated lines plus a final unterminated one.
func countLines(content []byte) int {
	n := bytes.Count(content, []byte{'\n'})
	if len(content) > 0 && content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func unsupported(e files.Entry) prompt.Summary {
	return prompt.Summary{Path: e.Path, Language: e.Language, Category: files.CategoryUnsupported}
}

func excerptOnly(e files.Entry, text string, maxRunes int) prompt.Summary {
	ex, cut := excerpt(text, maxRunes)
	return prompt.Summary{
		Path:      e.Path,
		Language:  e.Language,
		Category:  e.Category,
		Excerpt:   ex,
		Truncated: cut,
	}
}

// excerpt returns at most maxRunes runes of text and whether it cut.
func excerpt(text string, maxRunes int) (string, bool) {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text, false
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i], true
		}
		n++
	}
	return text, false
}

// looksBinary reports NUL bytes or invalid UTF-8 in the leading window.
func looksBinary(content []byte) bool {
	w := content
	if len(w) > sniffWindow {
		w = trimPartialRune(w[:sniffWindow])
	}
	return bytes.IndexByte(w, 0) >= 0 || !utf8.Valid(w)
}

// trimPartialRune drops an incomplete UTF-8 sequence left by a byte cut.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}
