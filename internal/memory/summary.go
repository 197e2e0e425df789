package memory

import (
	"strings"

	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// DefaultSummaryMaxChars caps the rolling summary; large enough for roughly
// 10–15 compressed turns.
const DefaultSummaryMaxChars = 5000

// SummaryBuilder folds evicted turns into the rolling summary text.
type SummaryBuilder struct {
	maxChars int
	budget   int // per-message compression budget
}

// NewSummaryBuilder creates a SummaryBuilder; non-positive arguments select
// the defaults.
func NewSummaryBuilder(maxChars, budget int) *SummaryBuilder {
	if maxChars <= 0 {
		maxChars = DefaultSummaryMaxChars
	}
	if budget <= 0 {
		budget = DefaultCompressBudget
	}
	return &SummaryBuilder{maxChars: maxChars, budget: budget}
}

// Fold compresses evicted and appends it to existing in chronological order.
// When the result exceeds the cap it is trimmed from the front — the oldest
// folded content goes first, preserving recency bias.
func (b *SummaryBuilder) Fold(existing string, evicted []schema.Message) string {
	if len(evicted) == 0 {
		return existing
	}

	parts := make([]string, 0, len(evicted))
	for _, msg := range evicted {
		if c := CompressMessage(msg.Role, msg.Content, b.budget); c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return existing
	}

	combined := strings.Join(parts, "\n")
	if existing != "" {
		combined = existing + "\n" + combined
	}

	if len(combined) > b.maxChars {
		marker := "…"
		combined = marker + combined[len(combined)-(b.maxChars-len(marker)):]
	}
	return combined
}
