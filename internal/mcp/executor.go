package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/pkg/models"
)

// RemoteExecutor exposes the tools of connected servers to the agent
// loop. The catalog is materialized once from each server's tool list
// and is read-only afterwards; calls route to the server that owns the
// tool. Transport failures and server-reported tool errors both come
// back as IsError results so the model can observe them.
type RemoteExecutor struct {
	defs    []models.ToolDefinition
	routes  map[string]*Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRemoteExecutor builds the executor from the manager's connected
// clients. When two servers expose the same tool name, the first
// registered server wins.
func NewRemoteExecutor(manager *Manager) *RemoteExecutor {
	e := &RemoteExecutor{
		routes: make(map[string]*Client),
		logger: observability.NewLogger(observability.LogConfig{}),
	}

	for _, client := range manager.Clients() {
		if !client.Connected() {
			continue
		}
		for _, tool := range client.Tools() {
			if _, taken := e.routes[tool.Name]; taken {
				e.logger.Warn(context.Background(), "duplicate remote tool name, keeping first",
					"tool", tool.Name, "server", client.Name())
				continue
			}
			schema := tool.InputSchema
			if len(schema) == 0 {
				schema = []byte(`{"type":"object"}`)
			}
			e.routes[tool.Name] = client
			e.defs = append(e.defs, models.ToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: schema,
			})
		}
	}
	return e
}

// SetLogger replaces the executor's logger.
func (e *RemoteExecutor) SetLogger(logger *observability.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetMetrics attaches a metrics recorder.
func (e *RemoteExecutor) SetMetrics(metrics *observability.Metrics) {
	e.metrics = metrics
}

// Catalog returns the discovered tool definitions.
func (e *RemoteExecutor) Catalog() []models.ToolDefinition {
	out := make([]models.ToolDefinition, len(e.defs))
	copy(out, e.defs)
	return out
}

// Execute routes the call to the owning server.
func (e *RemoteExecutor) Execute(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	client, ok := e.routes[call.Name]
	if !ok {
		return &models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("unknown tool: %s", call.Name),
			IsError:    true,
		}, nil
	}

	start := time.Now()
	result, err := client.CallTool(ctx, call.Name, call.Input)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		e.record(call.Name, "error", elapsed)
		e.logger.Warn(ctx, "remote tool call failed",
			"tool", call.Name, "server", client.Name(), "error", err)
		return &models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool server error: %v", err),
			IsError:    true,
		}, nil
	}

	content := result.Text()
	if result.IsError {
		e.record(call.Name, "tool_error", elapsed)
		if content == "" {
			content = fmt.Sprintf("tool %s reported an error", call.Name)
		}
		return &models.ToolResult{ToolCallID: call.ID, Content: content, IsError: true}, nil
	}

	e.record(call.Name, "success", elapsed)
	return &models.ToolResult{ToolCallID: call.ID, Content: content}, nil
}

func (e *RemoteExecutor) record(tool, status string, seconds float64) {
	if e.metrics != nil {
		e.metrics.RecordToolExecution(tool, status, seconds)
	}
}
