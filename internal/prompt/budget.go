package prompt

import (
	"errors"
	"fmt"
)

// ItemOverhead is the fixed per-item scaffolding cost added to every
// rendered summary.
const ItemOverhead = 8

// MinUsableTokens is the smallest usable window that still fits a
// placeholder item for a typical path.
const MinUsableTokens = 32

// ErrInvalidBudget is returned for a budget that leaves no usable room.
var ErrInvalidBudget = errors.New("invalid token budget")

// Budget is the per-request token allowance. It is passed by value and
// never mutated.
type Budget struct {
	MaxTokens      int
	ReservedTokens int
	Model          string
}

// Usable is the room left for items once the reserve is taken out.
func (b Budget) Usable() int { return b.MaxTokens - b.ReservedTokens }

func (b Budget) Validate() error {
	if b.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidBudget, b.MaxTokens)
	}
	if b.ReservedTokens < 0 {
		return fmt.Errorf("%w: reserved tokens cannot be negative, got %d", ErrInvalidBudget, b.ReservedTokens)
	}
	if u := b.Usable(); u <= ItemOverhead || u < MinUsableTokens {
		return fmt.Errorf("%w: max %d minus reserved %d leaves %d usable tokens, need at least %d",
			ErrInvalidBudget, b.MaxTokens, b.ReservedTokens, u, MinUsableTokens)
	}
	return nil
}
