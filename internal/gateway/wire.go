// Package gateway exposes the conversational control plane to clients:
// a websocket chat bridge that streams driver events as wire events,
// and a small HTTP API for session management, direct launches, health,
// and metrics.
package gateway

// Wire event types sent to websocket clients.
const (
	wireSessionCreated  = "session_created"
	wireContentDelta    = "content_delta"
	wireToolCallDelta   = "tool_call_delta"
	wireMessageComplete = "message_complete"
	wireToolResult      = "tool_result"
	wireFinal           = "final"
	wireError           = "error"
)

// clientTurn is one user turn from the client. Unknown fields are
// ignored.
type clientTurn struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// wireToolCall describes one tool_call_delta. InputJSON is a pointer so
// a start event (no key) stays distinguishable from a delta carrying an
// empty fragment (key present, empty string).
type wireToolCall struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	InputJSON *string `json:"input_json,omitempty"`
}

type sessionCreatedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type contentDeltaEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Role    string `json:"role"`
}

type toolCallDeltaEvent struct {
	Type     string       `json:"type"`
	ToolCall wireToolCall `json:"tool_call"`
}

type messageCompleteEvent struct {
	Type         string   `json:"type"`
	Content      string   `json:"content"`
	ToolCalls    []string `json:"tool_calls"`
	FinishReason string   `json:"finish_reason"`
}

type toolResultEvent struct {
	Type       string `json:"type"`
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
	Error      bool   `json:"error,omitempty"`
}

type finalEvent struct {
	Type           string   `json:"type"`
	Content        string   `json:"content"`
	SessionID      string   `json:"session_id"`
	IterationCount int      `json:"iteration_count"`
	Paused         bool     `json:"paused"`
	ToolCalls      []string `json:"tool_calls"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
