package tokens

import lru "github.com/hashicorp/golang-lru/v2"

// cached memoizes Count results. The prompt assembler re-counts the same
// rendered items while tightening oversized excerpts.
type cached struct {
	Accountant
	counts *lru.Cache[string, int]
}

// Cached wraps acc with a bounded LRU of Count results. It is safe for
// concurrent use if acc is.
func Cached(acc Accountant, size int) Accountant {
	if size <= 0 {
		size = defaultCacheSize
	}
	counts, err := lru.New[string, int](size)
	if err != nil {
		return acc
	}
	return &cached{Accountant: acc, counts: counts}
}

func (c *cached) Count(text string) int {
	if n, ok := c.counts.Get(text); ok {
		return n
	}
	n := c.Accountant.Count(text)
	c.counts.Add(text, n)
	return n
}
