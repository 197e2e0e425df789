// Package memory implements the bounded conversation-memory core: content
// filtering, message compression, the diagnostic state tracker, heuristic
// state extraction, the rolling summary, and prompt assembly.
//
// Three-tier model:
//  1. DiagnosticState — structured task state (JSON slot in the store)
//  2. Rolling summary — compressed older turns (text slot in the store)
//  3. Recent turns    — last N raw exchanges, filtered on the fly
//
// Everything here is deterministic; there is no model-based summarization.
package memory

import (
	"regexp"
	"strings"
)

// maxCodeBlockChars is the fenced-code body size above which the block is
// elided from filtered text.
const maxCodeBlockChars = 2000

const (
	logPlaceholder  = "[raw log — see findings above]"
	codePlaceholder = "```\n[large code block elided]\n```"
)

var (
	markerRe = regexp.MustCompile(`(?s)<!-- (?:PLOTLY_CHART|ATTACHED_IMAGES):.*?-->`)

	// A run of 5+ consecutive lines that start with a (possibly bracketed)
	// "YYYY-MM-DD HH:MM:SS" stamp is a raw log dump.
	logBlockRe = regexp.MustCompile(`(?m)(?:^\[?\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}[^\n]*\n?){5,}`)

	codeBlockRe = regexp.MustCompile("(?s)```[^\n]*\n(.*?)```")
)

// FilterContent strips non-semantic artifacts from message text: UI marker
// spans, raw timestamped log dumps, and oversized fenced code blocks.
// It is idempotent and never fails; unmatched or unbalanced syntax passes
// through unchanged.
func FilterContent(text string) string {
	out := markerRe.ReplaceAllString(text, "")
	out = logBlockRe.ReplaceAllString(out, logPlaceholder+"\n")
	out = codeBlockRe.ReplaceAllStringFunc(out, func(block string) string {
		body := codeBlockRe.FindStringSubmatch(block)[1]
		if len(body) > maxCodeBlockChars {
			return codePlaceholder
		}
		return block
	})
	return strings.TrimSpace(out)
}
