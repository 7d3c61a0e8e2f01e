package agent

// EventType discriminates driver events.
type EventType string

const (
	EventContentDelta    EventType = "content_delta"
	EventToolCallDelta   EventType = "tool_call_delta"
	EventMessageComplete EventType = "message_complete"
	EventToolResult      EventType = "tool_result"
	EventFinal           EventType = "final"
)

// ToolCallDeltaEvent is emitted once when a tool call starts (no fragment)
// and once per streamed argument fragment.
type ToolCallDeltaEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	InputJSON   string `json:"input_json,omitempty"`
	HasFragment bool   `json:"-"`
}

// MessageCompleteEvent marks an assistant turn boundary.
type MessageCompleteEvent struct {
	Content      string       `json:"content"`
	ToolCalls    []string     `json:"tool_calls"`
	FinishReason FinishReason `json:"finish_reason"`
}

// ToolResultEvent reports one completed tool execution. Emitted in
// completion order, not call order.
type ToolResultEvent struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Result     string `json:"result"`
	IsError    bool   `json:"error,omitempty"`
}

// FinalEvent terminates a run. Exactly one per run.
type FinalEvent struct {
	Content        string   `json:"content"`
	ToolCalls      []string `json:"tool_calls"`
	IterationCount int      `json:"iteration_count"`
	Paused         bool     `json:"paused"`
}

// Event is one element of the driver's output stream. Exactly one payload
// field matching Type is populated.
type Event struct {
	Type     EventType             `json:"type"`
	Text     string                `json:"text,omitempty"`
	ToolCall *ToolCallDeltaEvent   `json:"tool_call,omitempty"`
	Complete *MessageCompleteEvent `json:"complete,omitempty"`
	Result   *ToolResultEvent      `json:"result,omitempty"`
	Final    *FinalEvent           `json:"final,omitempty"`
}
