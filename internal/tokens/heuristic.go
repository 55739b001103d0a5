package tokens

import "unicode/utf8"

// runesPerToken is the rough size of one token for English text and code.
const runesPerToken = 4

// Heuristic approximates one token per four runes. A token is a group of
// four consecutive runes, so truncation always cuts on a group boundary.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

// Count estimates the number of tokens in text, rounding partial groups up
// so that any non-empty text costs at least one token.
func (Heuristic) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + runesPerToken - 1) / runesPerToken
}

// Truncate returns the longest prefix of text made of at most maxTokens
// whole rune groups.
func (h Heuristic) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if h.Count(text) <= maxTokens {
		return text
	}
	limit := maxTokens * runesPerToken
	seen := 0
	for i := range text {
		if seen == limit {
			return text[:i]
		}
		seen++
	}
	return text
}
