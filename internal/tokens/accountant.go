// Package tokens estimates and trims text against a model's token budget.
//
// Every Accountant honors the same truncation contract: the result is a true
// prefix of the input, it never counts above the limit, truncating twice is the
// same as truncating once, and a non-positive limit yields the empty string.
package tokens

import "strings"

// Accountant counts tokens the way the target model family does and trims
// text to fit a token limit.
type Accountant interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
	Name() string
}

const defaultCacheSize = 4096

// ForModel returns the most faithful accountant available for model.
// It prefers the model's BPE encoding and falls back to the character
// heuristic when no encoding can be loaded (e.g. offline, no cached ranks).
func ForModel(model string) Accountant {
	tk, err := NewTiktoken(model)
	if err != nil {
		return Heuristic{}
	}
	return Cached(tk, defaultCacheSize)
}

// normalizeModel strips a router vendor prefix ("openai/gpt-4o" -> "gpt-4o")
// and any ":tag" suffix so the name can be looked up in the encoding tables.
func normalizeModel(model string) string {
	m := strings.TrimSpace(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	if i := strings.Index(m, ":"); i >= 0 {
		m = m[:i]
	}
	return m
}
