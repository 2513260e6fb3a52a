package completion

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// truncationMarker is appended when Fit cuts text short.
const truncationMarker = "\n...[truncated]"

// Budget bounds how many tokens of context are sent to the provider. The
// count uses the cl100k_base encoding, which is close enough for both
// backends to keep requests under their context limits.
type Budget struct {
	max   int
	codec tokenizer.Codec
}

// NewBudget creates a Budget of max tokens. max <= 0 disables truncation.
func NewBudget(max int) (*Budget, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Budget{max: max, codec: codec}, nil
}

// Count returns the number of tokens in s.
func (b *Budget) Count(s string) int {
	ids, _, err := b.codec.Encode(s)
	if err != nil {
		return 0
	}
	return len(ids)
}

// Fit returns s unchanged when it fits the budget, otherwise its leading
// tokens followed by a truncation marker. truncated reports which happened.
func (b *Budget) Fit(s string) (out string, truncated bool) {
	if b == nil || b.max <= 0 {
		return s, false
	}

	ids, _, err := b.codec.Encode(s)
	if err != nil || len(ids) <= b.max {
		return s, false
	}

	head, err := b.codec.Decode(ids[:b.max])
	if err != nil {
		return s, false
	}
	return head + truncationMarker, true
}
