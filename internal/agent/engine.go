// Package agent implements the turn engine: it owns the load → assemble →
// respond → extract → fold → persist cycle for every conversation turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/instrumentgpt/instrumentgpt/internal/memory"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// Engine processes turns against the store and the agent transport.
// Turns on the same conversation are serialized; different conversations run
// concurrently.
type Engine struct {
	store     schema.ConversationStore
	transport schema.Transport
	extractor *memory.Extractor
	assembler *memory.Assembler
	folder    *memory.SummaryBuilder

	guideTag string
	model    string
	mode     string
	workdir  string

	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options carries the engine's tunables.
type Options struct {
	GuideTag string // debugging guide reference for device prompts
	Model    string
	Mode     string
	Workdir  string
	Logger   *slog.Logger
}

// NewEngine wires the memory core to the store and transport.
func NewEngine(
	store schema.ConversationStore,
	transport schema.Transport,
	extractor *memory.Extractor,
	assembler *memory.Assembler,
	folder *memory.SummaryBuilder,
	opts Options,
) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		transport: transport,
		extractor: extractor,
		assembler: assembler,
		folder:    folder,
		guideTag:  opts.GuideTag,
		model:     opts.Model,
		mode:      opts.Mode,
		workdir:   opts.Workdir,
		logger:    logger,
		locks:     map[string]*sync.Mutex{},
	}
}

// EnsureConversation returns the owner's most recent conversation, creating
// one titled after the question when none exists.
func (e *Engine) EnsureConversation(owner, question string) (string, error) {
	convs, err := e.store.Conversations(owner)
	if err != nil {
		return "", err
	}
	if len(convs) > 0 {
		return convs[0].ID, nil
	}
	return e.store.CreateConversation(owner, AutoTitle(question))
}

// ProcessTurn runs one complete turn. onEvent receives streaming updates and
// may be nil. On transport failure nothing is persisted: the log holds only
// complete exchanges, so a retry of the same question is clean.
func (e *Engine) ProcessTurn(ctx context.Context, conversationID, question string, onEvent func(schema.Event)) (string, error) {
	lock := e.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.store.Conversation(conversationID)
	if err != nil {
		return "", err
	}
	messages, summary, stateJSON, err := e.store.Load(conversationID)
	if err != nil {
		return "", err
	}
	state := memory.DeserializeState(stateJSON)

	deviceIP, deviceName, isDevice := e.extractor.ExtractDeviceQuery(question)
	enriched := e.enrichQuestion(question, deviceIP, deviceName)

	prompt, _ := e.assembler.Assemble(enriched, messages, state, summary, isDevice)

	req := schema.Request{
		Prompt:        prompt,
		Model:         e.model,
		Mode:          e.mode,
		ResumeSession: conv.CLISessionID,
		Workdir:       e.workdir,
	}
	resp, err := e.transport.Respond(ctx, req, e.captureSession(conversationID, onEvent))
	if err != nil {
		e.logger.Error("turn failed", "conversation", conversationID, "error", err)
		return "", fmt.Errorf("process turn: %w", err)
	}
	if resp.Text == "" {
		return "", fmt.Errorf("process turn: empty response")
	}

	newState := e.extractor.Extract(resp.Text, state)
	if isDevice && newState.DeviceIP == "" {
		// The question named the device but the response never repeated it.
		newState.DeviceIP = deviceIP
		newState.DeviceName = deviceName
		if newState.Status == memory.StatusIdle {
			newState.Status = memory.StatusInvestigating
		}
	}

	userMsg := schema.NewUserMessage(question)
	assistantMsg := schema.NewAssistantMessage(resp.Text)
	newSummary := e.foldEvicted(summary, messages, userMsg, assistantMsg)

	if err := e.store.SaveTurn(conversationID, userMsg, assistantMsg, newSummary, newState.Serialize()); err != nil {
		return "", fmt.Errorf("persist turn: %w", err)
	}

	if len(messages) == 0 && conv.Title == "" {
		if err := e.store.UpdateTitle(conversationID, AutoTitle(question)); err != nil {
			e.logger.Warn("auto title", "conversation", conversationID, "error", err)
		}
	}

	return resp.Text, nil
}

// foldEvicted folds the messages this turn pushes out of the raw window into
// the rolling summary. Each message is folded exactly once: the summary
// already covers everything before the previous window.
func (e *Engine) foldEvicted(summary string, prior []schema.Message, user, assistant schema.Message) string {
	window := e.assembler.RecentWindow()
	full := make([]schema.Message, 0, len(prior)+2)
	full = append(full, prior...)
	full = append(full, user, assistant)

	start := len(prior) - window
	if start < 0 {
		start = 0
	}
	end := len(full) - window
	if end < 0 {
		end = 0
	}
	if end <= start {
		return summary
	}
	return e.folder.Fold(summary, full[start:end])
}

// enrichQuestion prefixes device questions with the debugging guide and the
// resolved device identity so the agent starts working immediately.
func (e *Engine) enrichQuestion(question, deviceIP, deviceName string) string {
	tag := strings.TrimSpace(e.guideTag)
	if tag == "" || deviceIP == "" || strings.Contains(question, tag) {
		return question
	}
	return fmt.Sprintf(
		"Use %s as the primary guide. The user's target device is %s (%s). "+
			"Proceed directly with their request — do not ask for the device again.\n\n%s",
		tag, deviceName, deviceIP, question)
}

// captureSession wraps onEvent to persist the transport session id as soon as
// it appears, so a crashed turn can still resume the CLI session next time.
func (e *Engine) captureSession(conversationID string, onEvent func(schema.Event)) func(schema.Event) {
	return func(ev schema.Event) {
		if ev.Type == schema.EventSession && ev.Payload != "" {
			if err := e.store.UpdateCLISession(conversationID, ev.Payload); err != nil {
				e.logger.Warn("save cli session", "conversation", conversationID, "error", err)
			}
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
}

// LockConversation acquires the conversation's turn lock and returns the
// unlock function. Background jobs use it to keep store writes serialized
// with in-flight turns.
func (e *Engine) LockConversation(id string) func() {
	lock := e.lockFor(id)
	lock.Lock()
	return lock.Unlock
}

// lockFor returns the per-conversation mutex, creating it on first use.
func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

// AutoTitle derives a conversation title from the first question: its first
// line, truncated to 50 characters.
func AutoTitle(question string) string {
	title := strings.TrimSpace(question)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > 50 {
		return title[:47] + "..."
	}
	if title == "" {
		return "New Chat"
	}
	return title
}
