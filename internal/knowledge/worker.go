// Package knowledge turns liked answers into markdown knowledge-base
// documents by asking the agent to summarize the conversation up to the
// liked message.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/instrumentgpt/instrumentgpt/internal/memory"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

const summarizePrompt = `Summarize the following conversation into a knowledge document (Markdown).

CRITICAL: Output the FULL Markdown content directly in your response.
- Do NOT write to any file. Do NOT use write/edit tools.
- Your response will be saved automatically to the knowledge base.
- Output ONLY the document content — no "I have written..." or file paths.

Requirements:
- Extract key conclusions, root causes, and steps (do not copy verbatim)
- Clear structure: background, analysis, key steps
- Suitable for future reference

Conversation:
<conversation>
%s
</conversation>

Output the complete Markdown document in your response. No tools. No file paths.`

// Per-entry worker states used by schedule.
const (
	stateRunning uint8 = 1 // goroutine is actively summarizing
	stateQueued  uint8 = 2 // goroutine is running AND another run is pending
)

// Worker summarizes liked conversations in the background. At most one
// goroutine runs per liked entry, with one pending slot.
type Worker struct {
	store     schema.ConversationStore
	transport schema.Transport
	likedDir  string
	logger    *slog.Logger

	mu      sync.Mutex
	working map[string]uint8
}

func NewWorker(store schema.ConversationStore, transport schema.Transport, likedDir string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:     store,
		transport: transport,
		likedDir:  likedDir,
		logger:    logger,
		working:   make(map[string]uint8),
	}
}

// Like marks the answer for summarization and schedules the background run.
// Liking an already-completed answer is a no-op.
func (w *Worker) Like(conversationID string, lastMessageID int64) error {
	entry, err := w.store.LikedEntry(conversationID, lastMessageID)
	if err != nil {
		return err
	}
	switch {
	case entry == nil:
		if err := w.store.CreateLikedEntry(conversationID, lastMessageID); err != nil {
			return err
		}
	case entry.Status == schema.LikedCompleted:
		return nil
	case entry.Status == schema.LikedCancelled:
		if err := w.store.UpdateLikedStatus(conversationID, lastMessageID, schema.LikedPending, ""); err != nil {
			return err
		}
	}

	w.schedule(conversationID, lastMessageID)
	return nil
}

// Unlike cancels a pending summarization or removes a completed document.
func (w *Worker) Unlike(conversationID string, lastMessageID int64) error {
	entry, err := w.store.LikedEntry(conversationID, lastMessageID)
	if err != nil || entry == nil {
		return err
	}
	if entry.Status == schema.LikedCompleted && entry.FilePath != "" {
		if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("remove knowledge doc", "path", entry.FilePath, "error", err)
		}
	}
	return w.store.DeleteLikedEntry(conversationID, lastMessageID)
}

// schedule enforces at most one active goroutine per entry key with one
// pending slot.
//
// State machine per key:
//
//	absent       → stateRunning  launch goroutine
//	stateRunning → stateQueued   mark pending, goroutine will re-run
//	stateQueued  → stateQueued   already queued, nothing to do
func (w *Worker) schedule(conversationID string, lastMessageID int64) {
	key := fmt.Sprintf("%s:%d", conversationID, lastMessageID)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.working[key] {
	case stateRunning:
		w.working[key] = stateQueued
		return
	case stateQueued:
		return
	}

	w.working[key] = stateRunning
	go func() {
		for {
			if err := w.summarize(context.Background(), conversationID, lastMessageID); err != nil {
				w.logger.Error("knowledge summarization failed",
					"conversation", conversationID, "message", lastMessageID, "err", err)
			}

			w.mu.Lock()
			if w.working[key] == stateQueued {
				w.working[key] = stateRunning
				w.mu.Unlock()
				continue
			}
			delete(w.working, key)
			w.mu.Unlock()
			return
		}
	}()
}

// summarize runs one summarization pass: build the filtered conversation
// text, ask the agent in ask mode, and write the markdown document. Failures
// mark the entry cancelled so the surface can offer a retry.
func (w *Worker) summarize(ctx context.Context, conversationID string, lastMessageID int64) error {
	entry, err := w.store.LikedEntry(conversationID, lastMessageID)
	if err != nil {
		return err
	}
	if entry == nil || (entry.Status != schema.LikedPending && entry.Status != schema.LikedSummarizing) {
		return nil
	}
	if err := w.store.UpdateLikedStatus(conversationID, lastMessageID, schema.LikedSummarizing, ""); err != nil {
		return err
	}

	messages, err := w.store.MessagesUpTo(conversationID, lastMessageID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return w.store.UpdateLikedStatus(conversationID, lastMessageID, schema.LikedCancelled, "")
	}

	prompt := fmt.Sprintf(summarizePrompt, conversationText(messages))
	resp, err := w.transport.Respond(ctx, schema.Request{Prompt: prompt, Mode: "ask"}, nil)
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		w.logger.Warn("summarization produced no document",
			"conversation", conversationID, "err", err)
		return w.store.UpdateLikedStatus(conversationID, lastMessageID, schema.LikedCancelled, "")
	}

	path, err := w.writeDoc(conversationID, lastMessageID, resp.Text)
	if err != nil {
		_ = w.store.UpdateLikedStatus(conversationID, lastMessageID, schema.LikedCancelled, "")
		return err
	}
	return w.store.UpdateLikedStatus(conversationID, lastMessageID, schema.LikedCompleted, path)
}

// conversationText renders the filtered log for the summarization prompt.
func conversationText(messages []schema.Message) string {
	var parts []string
	for _, msg := range messages {
		if content := memory.FilterContent(msg.Content); content != "" {
			parts = append(parts, "## "+msg.Role.Label()+"\n"+content)
		}
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, "\n\n")
}

// writeDoc persists the markdown document under the knowledge directory.
func (w *Worker) writeDoc(conversationID string, lastMessageID int64, body string) (string, error) {
	if err := os.MkdirAll(w.likedDir, 0o755); err != nil {
		return "", fmt.Errorf("create knowledge dir: %w", err)
	}

	title := "Untitled"
	owner := ""
	if conv, err := w.store.Conversation(conversationID); err == nil {
		if conv.Title != "" {
			title = conv.Title
		}
		owner = conv.Owner
	}
	if len(title) > 50 {
		title = title[:50]
	}

	now := time.Now()
	name := fmt.Sprintf("liked_%s_%s.md", safeFileTitle(title), now.Format("2006-01-02_15-04-05"))
	path := filepath.Join(w.likedDir, name)

	header := fmt.Sprintf("# %s\n\n> owner: %s · conv: %s · msg: %d · %s\n\n---\n\n",
		title, owner, conversationID, lastMessageID, now.Format("2006-01-02 15:04"))

	if err := os.WriteFile(path, []byte(header+strings.TrimSpace(body)), 0o644); err != nil {
		return "", fmt.Errorf("write knowledge doc: %w", err)
	}
	return path, nil
}

// safeFileTitle keeps letters, digits, spaces, dashes and underscores.
func safeFileTitle(title string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, title)
}
