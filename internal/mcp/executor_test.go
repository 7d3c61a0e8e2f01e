package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/cueso/pkg/models"
)

func newConnectedManager(t *testing.T, fs *fakeServer) *Manager {
	t.Helper()
	manager := NewManager()
	if err := manager.AddServer(&ServerConfig{Name: "home", URL: fs.server.URL}); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if err := manager.ConnectAll(context.Background()); err != nil {
		t.Fatalf("ConnectAll: %v", err)
	}
	t.Cleanup(manager.Close)
	return manager
}

func TestRemoteExecutorCatalog(t *testing.T) {
	fs := newFakeServer(t)
	executor := NewRemoteExecutor(newConnectedManager(t, fs))

	defs := executor.Catalog()
	if len(defs) != 1 {
		t.Fatalf("catalog = %+v", defs)
	}
	if defs[0].Name != "lights_on" || defs[0].Description != "Turn the lights on" {
		t.Errorf("def = %+v", defs[0])
	}
	if len(defs[0].InputSchema) == 0 {
		t.Error("input schema should be populated")
	}
}

func TestRemoteExecutorExecute(t *testing.T) {
	fs := newFakeServer(t)
	executor := NewRemoteExecutor(newConnectedManager(t, fs))

	result, err := executor.Execute(context.Background(), models.ToolCall{
		ID:    "call-1",
		Name:  "lights_on",
		Input: json.RawMessage(`{"room":"kitchen"}`),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError || result.Content != "done" || result.ToolCallID != "call-1" {
		t.Errorf("result = %+v", result)
	}
}

func TestRemoteExecutorToolError(t *testing.T) {
	fs := newFakeServer(t)
	fs.callResult = map[string]any{
		"content": []map[string]any{{"type": "text", "text": "device unreachable"}},
		"isError": true,
	}
	executor := NewRemoteExecutor(newConnectedManager(t, fs))

	result, err := executor.Execute(context.Background(), models.ToolCall{ID: "1", Name: "lights_on"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError || result.Content != "device unreachable" {
		t.Errorf("result = %+v", result)
	}
}

func TestRemoteExecutorTransportError(t *testing.T) {
	fs := newFakeServer(t)
	fs.callErr = &RPCError{Code: ErrCodeInternalError, Message: "backend down"}
	executor := NewRemoteExecutor(newConnectedManager(t, fs))

	result, err := executor.Execute(context.Background(), models.ToolCall{ID: "1", Name: "lights_on"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "backend down") {
		t.Errorf("result = %+v", result)
	}
}

func TestRemoteExecutorUnknownTool(t *testing.T) {
	fs := newFakeServer(t)
	executor := NewRemoteExecutor(newConnectedManager(t, fs))

	result, err := executor.Execute(context.Background(), models.ToolCall{ID: "1", Name: "nope"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError || result.Content != "unknown tool: nope" {
		t.Errorf("result = %+v", result)
	}
}

func TestManagerRejectsDuplicateServer(t *testing.T) {
	manager := NewManager()
	cfg := &ServerConfig{Name: "home", URL: "http://host/rpc"}
	if err := manager.AddServer(cfg); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if err := manager.AddServer(cfg); err == nil {
		t.Error("duplicate server should be rejected")
	}
}

func TestManagerConnectAllFailure(t *testing.T) {
	manager := NewManager()
	if err := manager.AddServer(&ServerConfig{Name: "down", URL: "http://127.0.0.1:1/rpc"}); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if err := manager.ConnectAll(context.Background()); err == nil {
		t.Error("expected error when every server is unreachable")
	}
}
