package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/cueso/internal/agent"
	"github.com/haasonsaas/cueso/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements agent.LLMProvider for OpenAI's chat
// completions API.
//
// Differences from the Anthropic adapter that this one absorbs:
//   - The system prompt is the first message in the array, not a
//     separate parameter.
//   - Tool calls stream natively as indexed fragments; the first
//     fragment for an index carries the ID and function name.
//   - There is no explicit per-call end marker, so ToolCallEnd chunks
//     are synthesized when the stream finishes.
//   - Each tool result is its own message with role "tool".
//
// Safe for concurrent use; each Complete call creates an independent
// stream and goroutine.
type OpenAIProvider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// OpenAIConfig holds configuration for creating an OpenAIProvider.
// All fields except APIKey are optional.
type OpenAIConfig struct {
	// APIKey is the OpenAI API authentication key (required).
	APIKey string

	// BaseURL overrides the default API base URL, for proxies and
	// OpenAI-compatible servers.
	BaseURL string

	// MaxRetries sets the maximum retry attempts for transient
	// failures. Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between retries. Actual delay grows
	// linearly: RetryDelay * attempt. Default: 1s.
	RetryDelay time.Duration

	// DefaultModel is used when the request doesn't specify a model.
	DefaultModel string
}

// NewOpenAIProvider creates an OpenAI provider with the given
// configuration, applying defaults for unset optional fields.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// SupportsTools reports function-calling capability. Always true.
func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

// Complete sends a completion request and returns a channel of streamed
// chunks. The channel is closed when the stream ends. Stream creation is
// retried with linear backoff for transient failures; creation errors
// that survive retries are returned directly.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.getModel(req.Model),
		Messages: p.convertMessages(req.Messages, req.System),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}

		if !IsRetryable(lastErr) {
			return nil, NewProviderError("openai", chatReq.Model, lastErr)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", NewProviderError("openai", chatReq.Model, lastErr))
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks)

	return chunks, nil
}

// processStream consumes the OpenAI stream and converts it to completion
// chunks. A ToolCallStart is emitted when the first fragment for an
// index arrives with its ID and name; argument fragments follow as
// ToolCallDelta chunks. ToolCallEnd chunks for all open calls are
// synthesized before the terminal Done chunk, since OpenAI has no
// explicit end-of-call event.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	open := make(map[int]bool)
	finish := agent.FinishEndTurn

	var inputTokens int
	var outputTokens int

	finalize := func() {
		indices := make([]int, 0, len(open))
		for index := range open {
			indices = append(indices, index)
		}
		sort.Ints(indices)
		for _, index := range indices {
			chunks <- &agent.CompletionChunk{
				ToolCallEnd: &agent.ToolCallEnd{Index: index},
			}
		}
		chunks <- &agent.CompletionChunk{
			Done:         true,
			FinishReason: finish,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		}
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true, FinishReason: agent.FinishError}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				finalize()
				return
			}
			chunks <- &agent.CompletionChunk{Error: err, Done: true, FinishReason: agent.FinishError}
			return
		}

		// With IncludeUsage the final chunk carries usage and no choices.
		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta

		if delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}

			if !open[index] {
				open[index] = true
				chunks <- &agent.CompletionChunk{
					ToolCallStart: &agent.ToolCallStart{
						Index: index,
						ID:    tc.ID,
						Name:  tc.Function.Name,
					},
				}
			}

			if tc.Function.Arguments != "" {
				chunks <- &agent.CompletionChunk{
					ToolCallDelta: &agent.ToolCallArgDelta{
						Index:    index,
						Fragment: tc.Function.Arguments,
					},
				}
			}
		}

		if reason := response.Choices[0].FinishReason; reason != "" {
			finish = mapOpenAIFinishReason(reason)
		}
	}
}

func mapOpenAIFinishReason(reason openai.FinishReason) agent.FinishReason {
	switch reason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return agent.FinishToolUse
	case openai.FinishReasonLength:
		return agent.FinishLength
	case openai.FinishReasonStop:
		return agent.FinishEndTurn
	default:
		return agent.FinishEndTurn
	}
}

// convertMessages converts session history to OpenAI's format. The
// system prompt becomes the first message, assistant tool calls ride on
// the assistant message, and each tool result becomes a standalone
// message with role "tool" linked by ToolCallID.
func (p *OpenAIProvider) convertMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			// Handled via the system parameter above.
			continue

		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	return result
}

// convertTools converts tool definitions to OpenAI's function format.
// A definition with an unparseable schema degrades to an empty object
// schema rather than failing the whole request.
func (p *OpenAIProvider) convertTools(tools []models.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))

	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}

	return result
}

func (p *OpenAIProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}
