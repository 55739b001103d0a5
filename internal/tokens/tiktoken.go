package tokens

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is used for models the encoding tables do not know
// (Claude, Llama, Gemini...). It is close enough for budgeting.
const defaultEncoding = "cl100k_base"

// Tiktoken counts tokens with the BPE encoding of the configured model.
type Tiktoken struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewTiktoken loads the encoding for model, falling back to cl100k_base.
// It fails only when no encoding can be loaded at all.
func NewTiktoken(model string) (*Tiktoken, error) {
	name := normalizeModel(model)
	if name != "" {
		if enc, err := tiktoken.EncodingForModel(name); err == nil {
			return &Tiktoken{enc: enc, encoding: name}, nil
		}
	}
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokens: get encoding %s: %w", defaultEncoding, err)
	}
	return &Tiktoken{enc: enc, encoding: defaultEncoding}, nil
}

func (t *Tiktoken) Name() string { return "tiktoken:" + t.encoding }

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate keeps the first maxTokens tokens of text. BPE merges are not
// prefix-stable, so a cut that re-encodes longer than the limit, or splits a
// rune, is shortened one token at a time until it satisfies the bound.
func (t *Tiktoken) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	for k := maxTokens; k > 0; k-- {
		cut := trimPartialRune(t.enc.Decode(ids[:k]))
		if cut == "" || !strings.HasPrefix(text, cut) {
			continue
		}
		if t.Count(cut) <= maxTokens {
			return cut
		}
	}
	return ""
}

// trimPartialRune drops a trailing incomplete UTF-8 sequence.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}
