package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager owns the connections to all configured MCP servers.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	configs map[string]*ServerConfig
	clients map[string]*Client
}

// Config is the MCP section of the service configuration.
type Config struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Servers []*ServerConfig `yaml:"servers" json:"servers"`
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger.With("component", "mcp"),
		configs: make(map[string]*ServerConfig),
		clients: make(map[string]*Client),
	}
}

// AddServer registers a server config. Adding the same ID twice is a
// no-op so callers can re-run wiring safely.
func (m *Manager) AddServer(cfg *ServerConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil server config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.configs[cfg.ID]; exists {
		return nil
	}
	m.configs[cfg.ID] = cfg
	return nil
}

// Start connects every registered server with auto_start enabled. A
// failed server is logged and skipped, the rest still come up.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	var autoStart []string
	for id, cfg := range m.configs {
		if cfg.AutoStart {
			autoStart = append(autoStart, id)
		}
	}
	m.mu.RUnlock()

	sort.Strings(autoStart)
	for _, id := range autoStart {
		if err := m.Connect(ctx, id); err != nil {
			m.logger.Error("failed to connect to MCP server", "server", id, "error", err)
		}
	}
	return nil
}

// Stop disconnects every connected server.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Error("failed to close MCP client", "server", id, "error", err)
		}
		delete(m.clients, id)
	}
	return nil
}

// Connect connects to one registered server. Connecting an already
// connected server is a no-op.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	m.mu.RLock()
	cfg, known := m.configs[serverID]
	_, connected := m.clients[serverID]
	m.mu.RUnlock()

	if !known {
		return fmt.Errorf("server %q not registered", serverID)
	}
	if connected {
		return nil
	}

	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if _, raced := m.clients[serverID]; raced {
		m.mu.Unlock()
		client.Close()
		return nil
	}
	m.clients[serverID] = client
	m.mu.Unlock()

	m.logger.Info("connected to MCP server",
		"server", serverID,
		"name", client.ServerInfo().Name)
	return nil
}

// Disconnect closes the connection to one server.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, exists := m.clients[serverID]
	if !exists {
		return nil
	}
	if err := client.Close(); err != nil {
		return err
	}
	delete(m.clients, serverID)
	m.logger.Info("disconnected from MCP server", "server", serverID)
	return nil
}

// Client returns the client for a server, if connected.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[serverID]
	return client, exists
}

// AllTools returns the cached tools of every connected server, keyed by
// server ID.
func (m *Manager) AllTools() map[string][]*Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]*Tool)
	for id, client := range m.clients {
		if tools := client.Tools(); len(tools) > 0 {
			result[id] = tools
		}
	}
	return result
}

// CallTool invokes a tool on a specific server.
func (m *Manager) CallTool(ctx context.Context, serverID, toolName string, arguments json.RawMessage) (*CallResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", serverID)
	}
	return client.CallTool(ctx, toolName, arguments)
}

// ServerStatus summarizes one configured server for the status surface.
type ServerStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Server    ServerInfo `json:"server"`
	Tools     int        `json:"tools"`
}

// Status reports every registered server, connected or not, sorted by ID.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.configs))
	for _, cfg := range m.configs {
		status := ServerStatus{ID: cfg.ID, Name: cfg.Name}
		if client, exists := m.clients[cfg.ID]; exists {
			status.Connected = client.Connected()
			status.Server = client.ServerInfo()
			status.Tools = len(client.Tools())
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
