package memory

import (
	"strings"

	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

const (
	// DefaultRecentTurns is the number of raw exchanges kept in the prompt.
	DefaultRecentTurns = 3
	// DefaultMaxRecentChars is the hard ceiling per filtered recent message.
	DefaultMaxRecentChars = 3000
)

const (
	deviceNote = "Use diagnostic_context and conversation_summary to avoid " +
		"re-downloading logs already analyzed. Reuse existing findings. " +
		"If the user asks for fresh logs, re-download."
	generalNote = "Current question is NOT about device debugging. " +
		"Do not download logs or analyze devices. Answer directly."
)

// section is one typed block of the assembled prompt. Untagged sections
// (the current question) render verbatim; tagged sections render inside
// <tag>…</tag> and are dropped entirely when empty.
type section struct {
	tag  string
	body string
}

// Assembler composes the final bounded prompt from the memory tiers. Output
// size is bounded by a constant number of bounded sections regardless of
// conversation length.
type Assembler struct {
	recentTurns    int
	maxRecentChars int
}

// NewAssembler creates an Assembler; non-positive arguments select the
// defaults.
func NewAssembler(recentTurns, maxRecentChars int) *Assembler {
	if recentTurns <= 0 {
		recentTurns = DefaultRecentTurns
	}
	if maxRecentChars <= 0 {
		maxRecentChars = DefaultMaxRecentChars
	}
	return &Assembler{recentTurns: recentTurns, maxRecentChars: maxRecentChars}
}

// RecentWindow returns the size of the raw message window (2 messages per
// kept exchange). Messages beyond it are eviction candidates.
func (a *Assembler) RecentWindow() int {
	return 2 * a.recentTurns
}

// Assemble builds the outbound prompt from the current question, the
// diagnostic state, the rolling summary, and the last exchanges of the raw
// log. The question is emitted first and never filtered or truncated. The
// returned summary is the input summary unchanged — folding is the caller's
// separate eviction step.
func (a *Assembler) Assemble(
	question string,
	messages []schema.Message,
	state DiagnosticState,
	summary string,
	isDeviceQuery bool,
) (prompt string, usedSummary string) {
	sections := []section{{body: question}}

	if block := state.PromptBlock(); block != "" {
		sections = append(sections, section{tag: "diagnostic_context", body: block})
	}

	if isDeviceQuery {
		sections = append(sections, section{tag: "note", body: deviceNote})
	} else if hasAssistant(messages) {
		sections = append(sections, section{tag: "note", body: generalNote})
	}

	if summary != "" {
		sections = append(sections, section{tag: "conversation_summary", body: summary})
	}

	if recent := a.renderRecent(messages); recent != "" {
		sections = append(sections, section{tag: "recent_conversation", body: recent})
	}

	return render(sections), summary
}

// renderRecent formats the last RecentWindow messages, oldest first, each
// filtered and capped to the per-message ceiling by eliding the middle.
func (a *Assembler) renderRecent(messages []schema.Message) string {
	window := a.RecentWindow()
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	var lines []string
	for _, msg := range messages {
		content := FilterContent(msg.Content)
		if len(content) > a.maxRecentChars {
			half := a.maxRecentChars / 2
			content = content[:half] + "\n[...]\n" + content[len(content)-half:]
		}
		lines = append(lines, msg.Role.Label()+": "+content)
	}
	return strings.Join(lines, "\n\n")
}

// render concatenates non-empty sections in order, wrapping tagged ones.
func render(sections []section) string {
	var blocks []string
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		if s.tag == "" {
			blocks = append(blocks, s.body)
			continue
		}
		blocks = append(blocks, "<"+s.tag+">\n"+s.body+"\n</"+s.tag+">")
	}
	return strings.Join(blocks, "\n\n")
}

func hasAssistant(messages []schema.Message) bool {
	for _, m := range messages {
		if m.Role == schema.RoleAssistant {
			return true
		}
	}
	return false
}
