package tools

import (
	"context"
	"fmt"

	"github.com/haasonsaas/cueso/internal/agent"
	"github.com/haasonsaas/cueso/pkg/models"
)

// Registry composes executors into one ordered tool list and routes
// each call to the executor that owns the tool. It is assembled at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	order  []string
	byName map[string]registryEntry
}

type registryEntry struct {
	def  models.ToolDefinition
	exec agent.ToolExecutor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]registryEntry)}
}

// Add registers tools served by exec. With no names, every tool in the
// executor's catalog is added; otherwise only the named subset. Tool
// names are global: registering a name twice is an error.
func (r *Registry) Add(exec agent.ToolExecutor, names ...string) error {
	if exec == nil {
		return fmt.Errorf("registry: executor is nil")
	}

	defs := exec.Catalog()
	byDef := make(map[string]models.ToolDefinition, len(defs))
	for _, def := range defs {
		byDef[def.Name] = def
	}

	if len(names) == 0 {
		names = make([]string, 0, len(defs))
		for _, def := range defs {
			names = append(names, def.Name)
		}
	}

	for _, name := range names {
		def, ok := byDef[name]
		if !ok {
			return fmt.Errorf("registry: executor does not serve tool %q", name)
		}
		if _, exists := r.byName[name]; exists {
			return fmt.Errorf("registry: tool %q registered twice", name)
		}
		r.byName[name] = registryEntry{def: def, exec: exec}
		r.order = append(r.order, name)
	}
	return nil
}

// Catalog returns every registered tool in registration order.
func (r *Registry) Catalog() []models.ToolDefinition {
	out := make([]models.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].def)
	}
	return out
}

// Execute routes the call to the tool's executor. Calls for tools the
// registry does not know come back as error results, not errors, so
// the model sees them.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	entry, ok := r.byName[call.Name]
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool: %s", call.Name)), nil
	}
	return entry.exec.Execute(ctx, call)
}

// Has reports whether the registry serves the named tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}
