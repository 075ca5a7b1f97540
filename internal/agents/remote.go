package agents

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/mcp"
	"github.com/haasonsaas/concierge/internal/sessions"
)

// RemoteToolAgent is a ChatAgent that can also pull tools from MCP
// servers. Each AddServer call connects the server (once) and merges its
// tools into the runtime's registry.
type RemoteToolAgent struct {
	*ChatAgent
	manager *mcp.Manager

	mu        sync.Mutex
	connected map[string]struct{}
}

// NewRemoteToolAgent creates a remote-tool agent over an MCP manager.
func NewRemoteToolAgent(sessionID string, store sessions.Store, runtime *agent.Runtime, manager *mcp.Manager, logger *slog.Logger) (*RemoteToolAgent, error) {
	if manager == nil {
		return nil, errors.New("remote tool agent requires an MCP manager")
	}
	base, err := NewChatAgent(sessionID, store, runtime, logger)
	if err != nil {
		return nil, err
	}
	return &RemoteToolAgent{
		ChatAgent: base,
		manager:   manager,
		connected: make(map[string]struct{}),
	}, nil
}

// AddServer registers and connects an MCP server, then registers its
// bridged tools with the runtime. Adding an already connected server is a
// no-op.
func (a *RemoteToolAgent) AddServer(ctx context.Context, cfg *mcp.ServerConfig) error {
	if cfg == nil {
		return errors.New("nil server config")
	}

	a.mu.Lock()
	if _, done := a.connected[cfg.ID]; done {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.manager.AddServer(cfg); err != nil {
		return err
	}
	if err := a.manager.Connect(ctx, cfg.ID); err != nil {
		return err
	}

	a.mu.Lock()
	a.connected[cfg.ID] = struct{}{}
	a.mu.Unlock()

	// Re-registering a name replaces the previous entry, so refreshing the
	// whole bridged set after each connect is safe.
	registry := a.runtime.Registry()
	for _, tool := range a.manager.BridgedTools() {
		if err := registry.Register(tool); err != nil {
			a.logger.Warn("failed to register remote tool",
				"tool", tool.Name(), "error", err)
		}
	}
	return nil
}

// RemoteTools lists the merged remote tool set across connected servers.
func (a *RemoteToolAgent) RemoteTools() []agent.Tool {
	return a.manager.BridgedTools()
}

// Servers reports the status of every registered MCP server.
func (a *RemoteToolAgent) Servers() []mcp.ServerStatus {
	return a.manager.Status()
}
