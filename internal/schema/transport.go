package schema

import "context"

// EventType classifies a streaming event from the transport.
type EventType string

const (
	EventText        EventType = "text"         // assistant text delta, append
	EventTextReplace EventType = "text_replace" // complete text replacing accumulated
	EventTool        EventType = "tool"         // tool activity indicator
	EventSession     EventType = "session"      // transport session id (for resume)
	EventError       EventType = "error"        // error detail
	EventDone        EventType = "done"         // stream finished, payload = exit code
)

// Event is one streaming update emitted while a response is produced.
type Event struct {
	Type    EventType
	Payload string
}

// Request describes one prompt execution by the external agent.
type Request struct {
	Prompt        string
	Model         string // empty = transport default
	Mode          string // "agent", "ask", "plan"
	ResumeSession string // prior session id, empty to start fresh
	Workdir       string // agent working directory
}

// Response is the confirmed, complete result of a Request.
type Response struct {
	Text      string
	SessionID string // session id for later resume, may be empty
}

// Transport executes an assembled prompt against the external agent process.
// onEvent receives streaming updates and may be nil; implementations must
// only return once the response text is final. Cancelling ctx terminates the
// underlying process.
type Transport interface {
	Respond(ctx context.Context, req Request, onEvent func(Event)) (Response, error)
}
