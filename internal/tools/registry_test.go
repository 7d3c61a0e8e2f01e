package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/cueso/pkg/models"
)

// stubExecutor serves a fixed catalog and records the calls it gets.
type stubExecutor struct {
	name  string
	defs  []models.ToolDefinition
	calls []string
}

func newStubExecutor(name string, tools ...string) *stubExecutor {
	s := &stubExecutor{name: name}
	for _, tool := range tools {
		s.defs = append(s.defs, models.ToolDefinition{
			Name:        tool,
			Description: tool,
			InputSchema: json.RawMessage(`{"type":"object"}`),
		})
	}
	return s
}

func (s *stubExecutor) Catalog() []models.ToolDefinition { return s.defs }

func (s *stubExecutor) Execute(_ context.Context, call models.ToolCall) (*models.ToolResult, error) {
	s.calls = append(s.calls, call.Name)
	return &models.ToolResult{ToolCallID: call.ID, Content: "handled by " + s.name}, nil
}

func TestRegistryRouting(t *testing.T) {
	direct := newStubExecutor("direct", "launch_content", "send_key")
	remote := newStubExecutor("remote", "lights_on")

	reg := NewRegistry()
	if err := reg.Add(direct); err != nil {
		t.Fatalf("Add direct: %v", err)
	}
	if err := reg.Add(remote); err != nil {
		t.Fatalf("Add remote: %v", err)
	}

	result, err := reg.Execute(context.Background(), models.ToolCall{ID: "1", Name: "lights_on", Input: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "handled by remote" {
		t.Errorf("content = %q", result.Content)
	}
	if len(remote.calls) != 1 || len(direct.calls) != 0 {
		t.Errorf("calls: direct=%v remote=%v", direct.calls, remote.calls)
	}
}

func TestRegistryCatalogOrder(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add(newStubExecutor("a", "first", "second")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(newStubExecutor("b", "third")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	defs := reg.Catalog()
	if len(defs) != 3 {
		t.Fatalf("catalog = %v", defs)
	}
	for i, want := range []string{"first", "second", "third"} {
		if defs[i].Name != want {
			t.Errorf("catalog[%d] = %s, want %s", i, defs[i].Name, want)
		}
	}
}

func TestRegistrySubset(t *testing.T) {
	exec := newStubExecutor("a", "one", "two", "three")

	reg := NewRegistry()
	if err := reg.Add(exec, "three", "one"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if reg.Has("two") {
		t.Error("tool outside the subset should not be registered")
	}
	defs := reg.Catalog()
	if len(defs) != 2 || defs[0].Name != "three" || defs[1].Name != "one" {
		t.Errorf("catalog = %v", defs)
	}
}

func TestRegistryRejectsDuplicatesAndUnknown(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add(newStubExecutor("a", "shared")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(newStubExecutor("b", "shared")); err == nil {
		t.Error("duplicate tool name should be rejected")
	}
	if err := reg.Add(newStubExecutor("c", "x"), "missing"); err == nil {
		t.Error("unknown subset name should be rejected")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry()
	result, err := reg.Execute(context.Background(), models.ToolCall{ID: "1", Name: "nope"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError || result.Content != "unknown tool: nope" {
		t.Errorf("result = %+v", result)
	}
}
