package prompt

import (
	"github.com/KaramelBytes/codeloom-cli/internal/tokens"
)

// Batch is one group of summaries destined for a single request. Tokens is
// the estimated cost of its items and never exceeds the usable budget.
type Batch struct {
	Index     int       `json:"index"`
	Summaries []Summary `json:"summaries"`
	Tokens    int       `json:"tokens"`
}

// Paths lists the files in the batch in order.
func (b Batch) Paths() []string {
	out := make([]string, len(b.Summaries))
	for i, s := range b.Summaries {
		out[i] = s.Path
	}
	return out
}

// Note records a lossy budget adjustment to one file.
type Note struct {
	Path        string
	Message     string
	Placeholder bool
}

// Cost is the estimated token cost of placing s in a batch.
func Cost(s Summary, acc tokens.Accountant) int {
	return acc.Count(Render(s)) + ItemOverhead
}

// Assemble packs summaries greedily, in arrival order, into batches whose
// cost stays within b.Usable(). An item that cannot fit on its own has its
// excerpt truncated, or becomes a placeholder. Files are never dropped.
func Assemble(summaries []Summary, b Budget, acc tokens.Accountant) ([]Batch, []Note, error) {
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}
	usable := b.Usable()

	var (
		batches []Batch
		notes   []Note
		cur     Batch
	)
	flush := func() {
		if len(cur.Summaries) == 0 {
			return
		}
		cur.Index = len(batches)
		batches = append(batches, cur)
		cur = Batch{}
	}

	for _, s := range summaries {
		cost := Cost(s, acc)
		if cost > usable {
			var note Note
			s, cost, note = fit(s, usable, acc)
			notes = append(notes, note)
		}
		if cur.Tokens+cost > usable {
			flush()
		}
		cur.Summaries = append(cur.Summaries, s)
		cur.Tokens += cost
	}
	flush()
	return batches, notes, nil
}

// fit shrinks an oversized item until it costs at most usable tokens.
func fit(s Summary, usable int, acc tokens.Accountant) (Summary, int, Note) {
	if s.Excerpt != "" && !s.Placeholder {
		bare := s
		bare.Excerpt = ""
		bare.Truncated = true
		fixed := Cost(bare, acc)
		room := usable - fixed
		for room > 0 {
			cand := s
			cand.Excerpt = acc.Truncate(s.Excerpt, room)
			cand.Truncated = true
			if cand.Excerpt == "" {
				break
			}
			c := Cost(cand, acc)
			if c <= usable {
				return cand, c, Note{Path: s.Path, Message: "excerpt truncated to fit the token budget"}
			}
			// Rendering can merge tokens across the boundary; step down by the overshoot.
			over := c - usable
			if over < 1 {
				over = 1
			}
			room -= over
		}
	}

	p := Placeholder(s)
	c := Cost(p, acc)
	for c > usable && p.Language != "" {
		p.Language = ""
		c = Cost(p, acc)
	}
	if c > usable {
		p.Path = shortenPath(p.Path, usable, acc)
		c = Cost(p, acc)
	}
	return p, c, Note{
		Path:        s.Path,
		Message:     PlaceholderNote + "; replaced by a placeholder",
		Placeholder: true,
	}
}

// shortenPath keeps the tail of a very long path so the placeholder still fits.
func shortenPath(path string, usable int, acc tokens.Accountant) string {
	r := []rune(path)
	for i := 1; i < len(r); i++ {
		cand := "..." + string(r[i:])
		if Cost(Summary{Path: cand, Placeholder: true}, acc) <= usable {
			return cand
		}
	}
	return "..."
}
