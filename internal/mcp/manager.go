package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/cueso/internal/observability"
)

// Manager owns the clients for every configured tool server.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	order   []string
	logger  *observability.Logger
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		logger:  observability.NewLogger(observability.LogConfig{}),
	}
}

// SetLogger replaces the manager's logger and propagates it to clients.
func (m *Manager) SetLogger(logger *observability.Logger) {
	if logger == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
	for _, client := range m.clients {
		client.SetLogger(logger)
	}
}

// AddServer registers a server. Call before ConnectAll.
func (m *Manager) AddServer(cfg *ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[cfg.Name]; exists {
		return fmt.Errorf("server %q already registered", cfg.Name)
	}
	client := NewClient(cfg, nil)
	client.SetLogger(m.logger)
	m.clients[cfg.Name] = client
	m.order = append(m.order, cfg.Name)
	return nil
}

// ConnectAll connects every registered server. A server that fails to
// connect is logged and skipped; the rest stay usable.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	m.mu.RUnlock()

	var failed []string
	for _, name := range names {
		client := m.Client(name)
		if client == nil {
			continue
		}
		if err := client.Connect(ctx); err != nil {
			m.logger.Error(ctx, "tool server connect failed", "server", name, "error", err)
			failed = append(failed, name)
		}
	}

	if len(failed) == len(names) && len(names) > 0 {
		return fmt.Errorf("no tool server reachable")
	}
	return nil
}

// Close closes every client.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, client := range m.clients {
		client.Close()
	}
}

// Client returns the named client, or nil.
func (m *Manager) Client(name string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[name]
}

// Clients returns every client in registration order.
func (m *Manager) Clients() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.clients[name])
	}
	return out
}
