package memory

import (
	"strings"

	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// DefaultCompressBudget is the per-role character budget used when folding a
// message into the rolling summary.
const DefaultCompressBudget = 300

// CompressMessage reduces one message to a bounded, role-labelled digest for
// the rolling summary. User messages are truncated to budget; assistant
// messages keep their first and last paragraph, each truncated independently.
// Output never exceeds roughly twice the budget and is empty only for empty
// input. budget <= 0 selects DefaultCompressBudget.
func CompressMessage(role schema.Role, content string, budget int) string {
	if budget <= 0 {
		budget = DefaultCompressBudget
	}

	filtered := FilterContent(content)
	if filtered == "" {
		return ""
	}
	label := role.Label() + ": "
	if len(filtered) <= budget {
		return label + filtered
	}

	if role == schema.RoleAssistant {
		paragraphs := splitParagraphs(filtered)
		if len(paragraphs) >= 2 {
			first := ellipsize(paragraphs[0], budget)
			last := ellipsize(paragraphs[len(paragraphs)-1], budget)
			return label + first + "\n...\n" + last
		}
	}
	return label + ellipsize(filtered, budget)
}

// splitParagraphs returns the non-empty blank-line-delimited paragraphs.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ellipsize truncates s to at most n bytes, marking the cut with "…".
func ellipsize(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
