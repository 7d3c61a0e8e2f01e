package agent

import (
	"context"

	"github.com/haasonsaas/cueso/pkg/models"
)

// FinishReason describes why a provider stream ended.
type FinishReason string

const (
	FinishEndTurn      FinishReason = "end_turn"
	FinishToolUse      FinishReason = "tool_use"
	FinishLength       FinishReason = "length"
	FinishStopSequence FinishReason = "stop_sequence"
	FinishError        FinishReason = "error"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of each vendor's streaming API
// (Anthropic, OpenAI) while presenting a unified event contract to the
// driver: content deltas, tool-call start/argument/end events, and exactly
// one terminal chunk per stream.
//
// Implementations must be safe for concurrent use; multiple drivers may
// call Complete simultaneously.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response. The
	// returned channel is closed after the terminal chunk.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider's
	// default model is used.
	Model string `json:"model"`

	// System is the system prompt. Handled separately from messages in
	// both vendor APIs.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	Messages []models.Message `json:"messages"`

	// Tools defines the tools the model may request to execute.
	Tools []models.ToolDefinition `json:"tools,omitempty"`

	// MaxTokens limits the generated response length. If 0, the
	// provider default applies.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature,omitempty"`
}

// ToolCallStart announces a new tool call at a positional stream slot.
// The id is provider-assigned and authoritative.
type ToolCallStart struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// ToolCallArgDelta appends bytes to the JSON arguments of the call at a
// slot. Fragments are not individually valid JSON; only the concatenation
// must parse once the call ends.
type ToolCallArgDelta struct {
	Index    int    `json:"index"`
	Fragment string `json:"fragment"`
}

// ToolCallEnd marks the call at a slot as complete.
type ToolCallEnd struct {
	Index int `json:"index"`
}

// CompletionChunk is a single event in a streaming LLM response.
//
// Exactly one of the event fields is populated per chunk:
//   - Text: a fragment of assistant text
//   - ToolCallStart / ToolCallDelta / ToolCallEnd: tool-call assembly
//   - Done: terminal, with FinishReason set
//
// Error is carried alongside Done when FinishReason is "error".
type CompletionChunk struct {
	// Text contains partial response text, streamed incrementally.
	Text string `json:"text,omitempty"`

	// ToolCallStart announces a new tool call.
	ToolCallStart *ToolCallStart `json:"tool_call_start,omitempty"`

	// ToolCallDelta carries an argument fragment for an open call.
	ToolCallDelta *ToolCallArgDelta `json:"tool_call_delta,omitempty"`

	// ToolCallEnd closes an open call.
	ToolCallEnd *ToolCallEnd `json:"tool_call_end,omitempty"`

	// Done is true on the terminal chunk. Every stream produces exactly
	// one terminal chunk before the channel closes.
	Done bool `json:"done,omitempty"`

	// FinishReason is set on the terminal chunk.
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Error carries the failure behind a FinishError terminal chunk.
	Error error `json:"-"`

	// InputTokens and OutputTokens report usage, terminal chunk only.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ToolExecutor executes tool calls on behalf of the driver.
//
// Failures that the model should observe (bad arguments, HTTP errors,
// remote tool errors, timeouts) are returned as results with IsError=true.
// A non-nil error is reserved for infrastructure faults; the driver
// converts those into error results as well before feeding them back.
type ToolExecutor interface {
	// Execute runs one tool call and returns its result.
	Execute(ctx context.Context, call models.ToolCall) (*models.ToolResult, error)

	// Catalog returns the tool definitions this executor serves.
	Catalog() []models.ToolDefinition
}
