// Package providers implements transports to the external agent process.
package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// debugEnvVar enables raw NDJSON capture for protocol analysis.
const debugEnvVar = "INSTRUMENT_DEBUG_NDJSON"

// pathEnvVar points at the agent binary (or its directory) when the daemon's
// PATH does not include it.
const pathEnvVar = "INSTRUMENT_AGENT_PATH"

var binaryCandidates = []string{"agent", "cursor-agent"}

const notFoundMsg = "agent CLI not found; install it or set " + pathEnvVar +
	" to the binary's full path"

// AgentCLI runs prompts through the Cursor Agent CLI in NDJSON streaming
// mode (`agent -p --output-format stream-json --stream-partial-output`).
type AgentCLI struct {
	binPath      string // explicit binary path or directory, may be empty
	workdir      string
	defaultModel string
	debugDir     string
	logger       *slog.Logger
}

var _ schema.Transport = (*AgentCLI)(nil)

// NewAgentCLI creates the transport. binPath and defaultModel may be empty;
// workdir is the agent's working directory for tool use.
func NewAgentCLI(binPath, workdir, defaultModel, debugDir string, logger *slog.Logger) *AgentCLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentCLI{
		binPath:      binPath,
		workdir:      workdir,
		defaultModel: defaultModel,
		debugDir:     debugDir,
		logger:       logger,
	}
}

// Respond implements schema.Transport. It starts the CLI, writes the prompt
// to stdin, and consumes the NDJSON stream until exit. The response text is
// only returned on a clean exit; cancelling ctx kills the process.
func (a *AgentCLI) Respond(ctx context.Context, req schema.Request, onEvent func(schema.Event)) (schema.Response, error) {
	emit := onEvent
	if emit == nil {
		emit = func(schema.Event) {}
	}

	bin, err := a.resolveBinary()
	if err != nil {
		emit(schema.Event{Type: schema.EventError, Payload: notFoundMsg})
		return schema.Response{}, err
	}

	args := []string{"-p", "--output-format", "stream-json", "--stream-partial-output", "-f"}
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	if model != "" {
		args = append(args, "-m", model)
	}
	if req.Mode != "" && req.Mode != "agent" {
		args = append(args, "--mode", req.Mode)
	}
	if req.ResumeSession != "" {
		args = append(args, "--resume", req.ResumeSession)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if req.Workdir != "" {
		cmd.Dir = req.Workdir
	} else {
		cmd.Dir = a.workdir
	}
	cmd.Stdin = strings.NewReader(req.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return schema.Response{}, fmt.Errorf("open stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	a.logger.Debug("starting agent CLI", "bin", bin, "mode", req.Mode, "resume", req.ResumeSession != "")
	if err := cmd.Start(); err != nil {
		emit(schema.Event{Type: schema.EventError, Payload: notFoundMsg})
		return schema.Response{}, fmt.Errorf("start agent CLI: %w", err)
	}

	text, sessionID, streamErr := a.consumeStream(stdout, emit)

	waitErr := cmd.Wait()
	exit := cmd.ProcessState.ExitCode()
	emit(schema.Event{Type: schema.EventDone, Payload: fmt.Sprintf("%d", exit)})

	if ctx.Err() != nil {
		return schema.Response{}, ctx.Err()
	}
	if streamErr != nil {
		return schema.Response{}, fmt.Errorf("read agent stream: %w", streamErr)
	}
	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			emit(schema.Event{Type: schema.EventError, Payload: detail})
			return schema.Response{}, fmt.Errorf("agent CLI exited %d: %s", exit, detail)
		}
		return schema.Response{}, fmt.Errorf("agent CLI exited %d: %w", exit, waitErr)
	}

	return schema.Response{Text: text, SessionID: sessionID}, nil
}

// resolveBinary finds the CLI: explicit config path first, then the env
// override, then PATH.
func (a *AgentCLI) resolveBinary() (string, error) {
	for _, p := range []string{a.binPath, os.Getenv(pathEnvVar)} {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			return p, nil
		}
		for _, name := range binaryCandidates {
			candidate := filepath.Join(p, name)
			if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
				return candidate, nil
			}
		}
	}
	for _, name := range binaryCandidates {
		if found, err := exec.LookPath(name); err == nil {
			return found, nil
		}
	}
	return "", fmt.Errorf("agent CLI binary not found")
}

// ─── NDJSON stream ─────────────────────────────────────────────────────────

// streamLine is one NDJSON object from the CLI. Only the fields we consume
// are declared.
type streamLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Message   struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	ToolCall map[string]toolCallBody `json:"tool_call"`
}

type toolCallBody struct {
	Args map[string]any `json:"args"`
}

// consumeStream reads NDJSON lines until EOF, emitting streaming events and
// returning the final accumulated text plus the CLI session id.
//
// The CLI with --stream-partial-output interleaves three shapes of assistant
// event: small deltas, cumulative re-sends (text that startswith what we
// already hold), and one final complete message. The dedup below handles all
// three so downstream consumers can blindly append text events.
func (a *AgentCLI) consumeStream(r io.Reader, emit func(schema.Event)) (text, sessionID string, err error) {
	dbg := a.openDebugLog()
	if dbg != nil {
		defer dbg.Close()
	}

	var accumulated strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if dbg != nil {
			fmt.Fprintln(dbg, line)
		}

		var ev streamLine
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue // tolerate non-JSON noise on stdout
		}

		if sessionID == "" && ev.SessionID != "" {
			sessionID = ev.SessionID
			emit(schema.Event{Type: schema.EventSession, Payload: sessionID})
		}

		switch ev.Type {
		case "assistant":
			for _, item := range ev.Message.Content {
				if item.Type != "text" || item.Text == "" {
					continue
				}
				mergeDelta(&accumulated, item.Text, emit)
			}
		case "tool_call":
			if ev.Subtype != "started" {
				continue
			}
			if desc := describeToolCall(ev.ToolCall); desc != "" {
				emit(schema.Event{Type: schema.EventTool, Payload: desc})
			}
		}
	}
	return accumulated.String(), sessionID, scanner.Err()
}

// mergeDelta folds one assistant text item into the accumulated text,
// deduplicating cumulative and re-sent events.
func mergeDelta(accumulated *strings.Builder, text string, emit func(schema.Event)) {
	current := accumulated.String()
	switch {
	case current == "":
		accumulated.WriteString(text)
		emit(schema.Event{Type: schema.EventText, Payload: text})
	case strings.HasPrefix(text, current):
		// Cumulative event, forward only the new tail.
		if tail := text[len(current):]; tail != "" {
			accumulated.Reset()
			accumulated.WriteString(text)
			emit(schema.Event{Type: schema.EventText, Payload: tail})
		}
	case strings.HasPrefix(current, text) || strings.Contains(current, text):
		// Subset of what we already hold.
	case len(text) >= len(current)/2 && len(text) > 100:
		// Final complete re-send, possibly cleaner than the streamed
		// version. Replace wholesale.
		accumulated.Reset()
		accumulated.WriteString(text)
		emit(schema.Event{Type: schema.EventTextReplace, Payload: text})
	default:
		accumulated.WriteString(text)
		emit(schema.Event{Type: schema.EventText, Payload: text})
	}
}

// openDebugLog opens a capture file when the debug env var is set.
func (a *AgentCLI) openDebugLog() *os.File {
	if os.Getenv(debugEnvVar) == "" {
		return nil
	}
	dir := a.debugDir
	if dir == "" {
		dir = filepath.Join("data", "debug_ndjson")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Warn("debug ndjson dir", "error", err)
		return nil
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%d.jsonl", time.Now().Unix())))
	if err != nil {
		a.logger.Warn("debug ndjson file", "error", err)
		return nil
	}
	return f
}

// ─── Tool-call descriptions ────────────────────────────────────────────────

// toolDescriptors maps CLI tool-call keys to a display verb and the argument
// that best identifies the call.
var toolDescriptors = []struct {
	key, argField, verb string
}{
	{"shellToolCall", "command", "Running"},
	{"readToolCall", "path", "Reading"},
	{"editToolCall", "path", "Editing"},
	{"writeToolCall", "path", "Writing"},
	{"deleteToolCall", "path", "Deleting"},
	{"grepToolCall", "pattern", "Searching"},
	{"globToolCall", "globPattern", "Finding"},
	{"lsToolCall", "path", "Listing"},
}

func describeToolCall(tc map[string]toolCallBody) string {
	for _, d := range toolDescriptors {
		body, ok := tc[d.key]
		if !ok {
			continue
		}
		val, _ := body.Args[d.argField].(string)
		if val == "" {
			return ""
		}
		if len(val) > 80 {
			val = val[:77] + "..."
		}
		return d.verb + ": `" + val + "`"
	}
	return ""
}
