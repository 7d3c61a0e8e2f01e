package agent

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/pkg/models"
)

// eventBufferSize is the capacity of the driver's outbound event channel.
const eventBufferSize = 32

// DriverConfig configures driver behavior for tool dispatch.
type DriverConfig struct {
	// ToolConcurrency is the maximum number of concurrent tool
	// executions within one assistant turn. Default: 4.
	ToolConcurrency int

	// PerToolTimeout bounds individual tool executions. Exceeding it
	// yields an IsError result, not a driver failure. Default: 30s.
	PerToolTimeout time.Duration
}

// DefaultDriverConfig returns the standard dispatch settings.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		ToolConcurrency: 4,
		PerToolTimeout:  30 * time.Second,
	}
}

func sanitizeDriverConfig(config DriverConfig) DriverConfig {
	if config.ToolConcurrency <= 0 {
		config.ToolConcurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return config
}

// Driver runs the tool-calling loop for one session at a time:
// prompt the provider, stream the assistant turn, dispatch any tool calls,
// feed results back, and re-prompt until the model stops asking for tools,
// a pause-after tool completes, or the iteration bound is hit.
//
// A driver instance is stateless between runs and safe for concurrent use
// across sessions; per-session exclusion is the caller's responsibility
// (the session store's lock).
type Driver struct {
	provider LLMProvider
	executor ToolExecutor
	config   DriverConfig

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewDriver creates a driver around a provider and a tool executor.
func NewDriver(provider LLMProvider, executor ToolExecutor, config DriverConfig) *Driver {
	return &Driver{
		provider: provider,
		executor: executor,
		config:   sanitizeDriverConfig(config),
		logger:   observability.NewLogger(observability.LogConfig{}),
	}
}

// SetLogger replaces the driver's logger.
func (d *Driver) SetLogger(logger *observability.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics wires Prometheus metrics into the driver. Optional.
func (d *Driver) SetMetrics(metrics *observability.Metrics) {
	d.metrics = metrics
}

// SetTracer wires distributed tracing into the driver. Optional.
func (d *Driver) SetTracer(tracer *observability.Tracer) {
	d.tracer = tracer
}

// pendingCall is a tool call under assembly from streamed fragments.
type pendingCall struct {
	index int
	id    string
	name  string
	args  strings.Builder

	closed  bool
	invalid bool
}

// turnResult is the outcome of one provider stream.
type turnResult struct {
	content string
	calls   []*pendingCall
	reason  FinishReason
}

// Run executes the tool-calling loop for one user turn and streams driver
// events through the returned channel. The channel is closed after the
// terminal EventFinal, or without one if ctx is canceled mid-run.
//
// The session is mutated in place: the user message is appended
// immediately, each completed assistant turn and its tool replies are
// appended in order, and IterationCount advances per assistant turn.
// A turn that ends in a provider error is not appended, keeping the
// transcript valid.
func (d *Driver) Run(ctx context.Context, session *models.Session, userMessage string) (<-chan *Event, error) {
	if d.provider == nil {
		return nil, ErrNoProvider
	}
	if d.executor == nil {
		return nil, ErrNoExecutor
	}
	if session == nil {
		return nil, ErrNilSession
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}

	catalog := d.executor.Catalog()
	pauseAfter := make(map[string]bool, len(catalog))
	for _, def := range catalog {
		if def.PauseAfter {
			pauseAfter[def.Name] = true
		}
	}

	session.Append(models.Message{Role: models.RoleUser, Content: userMessage})

	events := make(chan *Event, eventBufferSize)

	go func() {
		defer close(events)

		runCtx := observability.AddSessionID(ctx, session.ID)
		iterations := 0
		defer func() {
			if d.metrics != nil && iterations > 0 {
				d.metrics.DriverIterations.Observe(float64(iterations))
			}
		}()

		// The bound applies per run: a turn that resumes after a pause
		// counts from zero again. Session.IterationCount still tracks
		// the conversation-lifetime total (cleared by reset).
		var lastContent string
		for iterations < session.Config.MaxIterations {
			session.IterationCount++
			iterations++

			turn, ok := d.streamTurn(runCtx, session, catalog, events)
			if !ok {
				return
			}

			names := make([]string, 0, len(turn.calls))
			for _, call := range turn.calls {
				names = append(names, call.name)
			}

			if turn.reason == FinishError {
				// Failed turn: report it, but keep the partial
				// assistant message out of history.
				if !d.send(runCtx, events, &Event{Type: EventMessageComplete, Complete: &MessageCompleteEvent{
					Content:      turn.content,
					ToolCalls:    names,
					FinishReason: FinishError,
				}}) {
					return
				}
				d.send(runCtx, events, &Event{Type: EventFinal, Final: &FinalEvent{
					Content:        turn.content,
					ToolCalls:      names,
					IterationCount: iterations,
					Paused:         false,
				}})
				return
			}

			toolCalls := make([]models.ToolCall, 0, len(turn.calls))
			for _, call := range turn.calls {
				toolCalls = append(toolCalls, models.ToolCall{
					ID:    call.id,
					Name:  call.name,
					Input: json.RawMessage(call.args.String()),
				})
			}
			session.Append(models.Message{
				Role:      models.RoleAssistant,
				Content:   turn.content,
				ToolCalls: toolCalls,
			})

			if !d.send(runCtx, events, &Event{Type: EventMessageComplete, Complete: &MessageCompleteEvent{
				Content:      turn.content,
				ToolCalls:    names,
				FinishReason: turn.reason,
			}}) {
				return
			}

			if len(turn.calls) == 0 {
				d.send(runCtx, events, &Event{Type: EventFinal, Final: &FinalEvent{
					Content:        turn.content,
					ToolCalls:      []string{},
					IterationCount: iterations,
					Paused:         false,
				}})
				return
			}
			lastContent = turn.content

			// Tool replies are appended even when dispatch is cut short:
			// the assistant message with its tool calls is already in
			// history, and a transcript with unanswered tool calls is
			// rejected by the provider on the next run.
			results, ok := d.dispatchTools(runCtx, turn.calls, events)
			for i := range results {
				session.Append(models.Message{
					Role:       models.RoleTool,
					Content:    results[i].Content,
					ToolCallID: results[i].ToolCallID,
				})
			}
			if !ok {
				return
			}

			paused := false
			for _, name := range names {
				if pauseAfter[name] {
					paused = true
					break
				}
			}
			if paused {
				d.logger.Info(runCtx, "driver paused after tool turn", "tools", names, "iteration", session.IterationCount)
				d.send(runCtx, events, &Event{Type: EventFinal, Final: &FinalEvent{
					Content:        "",
					ToolCalls:      names,
					IterationCount: iterations,
					Paused:         true,
				}})
				return
			}
		}

		d.logger.Info(runCtx, "driver hit iteration bound", "max_iterations", session.Config.MaxIterations)
		d.send(runCtx, events, &Event{Type: EventFinal, Final: &FinalEvent{
			Content:        lastContent,
			ToolCalls:      []string{},
			IterationCount: iterations,
			Paused:         false,
		}})
	}()

	return events, nil
}

// streamTurn opens one provider stream and assembles the assistant turn
// from its events, forwarding content and tool-call deltas as driver
// events. Returns ok=false if the run should stop silently (ctx canceled).
func (d *Driver) streamTurn(ctx context.Context, session *models.Session, catalog []models.ToolDefinition, events chan<- *Event) (turnResult, bool) {
	req := &CompletionRequest{
		Model:       session.Config.Model,
		System:      session.Config.SystemPrompt,
		Messages:    session.Messages,
		Tools:       catalog,
		MaxTokens:   session.Config.MaxTokens,
		Temperature: session.Config.Temperature,
	}

	streamCtx := ctx
	if d.tracer != nil {
		spanCtx, span := d.tracer.TraceLLMRequest(ctx, d.provider.Name(), req.Model, session.ID)
		streamCtx = spanCtx
		defer span.End()
	}

	start := time.Now()
	var turn turnResult
	turn.reason = FinishEndTurn

	chunks, err := d.provider.Complete(streamCtx, req)
	if err != nil {
		d.logger.Error(ctx, "provider call failed", "provider", d.provider.Name(), "error", err)
		if d.metrics != nil {
			d.metrics.RecordLLMRequest(d.provider.Name(), req.Model, "error", time.Since(start).Seconds(), 0, 0)
		}
		turn.reason = FinishError
		return turn, true
	}

	var content strings.Builder
	pendings := make(map[int]*pendingCall)
	inputTokens, outputTokens := 0, 0

	for chunk := range chunks {
		if chunk.Error != nil {
			d.logger.Error(ctx, "provider stream error", "provider", d.provider.Name(), "error", chunk.Error)
			turn.reason = FinishError
			continue
		}

		switch {
		case chunk.Text != "":
			content.WriteString(chunk.Text)
			if !d.send(ctx, events, &Event{Type: EventContentDelta, Text: chunk.Text}) {
				return turn, false
			}

		case chunk.ToolCallStart != nil:
			sc := chunk.ToolCallStart
			pendings[sc.Index] = &pendingCall{
				index: sc.Index,
				id:    sc.ID,
				name:  sc.Name,
			}
			if !d.send(ctx, events, &Event{Type: EventToolCallDelta, ToolCall: &ToolCallDeltaEvent{
				ID:   sc.ID,
				Name: sc.Name,
			}}) {
				return turn, false
			}

		case chunk.ToolCallDelta != nil:
			delta := chunk.ToolCallDelta
			pending, ok := pendings[delta.Index]
			if !ok {
				continue
			}
			pending.args.WriteString(delta.Fragment)
			if !d.send(ctx, events, &Event{Type: EventToolCallDelta, ToolCall: &ToolCallDeltaEvent{
				ID:          pending.id,
				Name:        pending.name,
				InputJSON:   delta.Fragment,
				HasFragment: true,
			}}) {
				return turn, false
			}

		case chunk.ToolCallEnd != nil:
			pending, ok := pendings[chunk.ToolCallEnd.Index]
			if !ok {
				continue
			}
			pending.closed = true
			if pending.args.Len() == 0 {
				pending.args.WriteString("{}")
			}
			if !json.Valid([]byte(pending.args.String())) {
				pending.invalid = true
			}

		case chunk.Done:
			if chunk.FinishReason != "" {
				turn.reason = chunk.FinishReason
			}
			inputTokens = chunk.InputTokens
			outputTokens = chunk.OutputTokens
		}
	}

	turn.content = content.String()
	for _, pending := range pendings {
		turn.calls = append(turn.calls, pending)
	}
	sort.Slice(turn.calls, func(i, j int) bool { return turn.calls[i].index < turn.calls[j].index })

	if d.metrics != nil {
		status := "success"
		if turn.reason == FinishError {
			status = "error"
		}
		d.metrics.RecordLLMRequest(d.provider.Name(), req.Model, status, time.Since(start).Seconds(), inputTokens, outputTokens)
	}

	if ctx.Err() != nil {
		return turn, false
	}
	return turn, true
}

// send delivers an event unless the run has been canceled. Returns false
// when the consumer is gone and the run should stop.
func (d *Driver) send(ctx context.Context, events chan<- *Event, ev *Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
