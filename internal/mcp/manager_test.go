package mcp

import (
	"context"
	"testing"
)

func TestManagerAddServer(t *testing.T) {
	mgr := NewManager(nil)

	cfg := &ServerConfig{ID: "files", Transport: TransportStdio, Command: "mcp-fs"}
	if err := mgr.AddServer(cfg); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	// Re-adding the same ID is a no-op, not an error.
	if err := mgr.AddServer(cfg); err != nil {
		t.Errorf("AddServer again: %v", err)
	}

	if err := mgr.AddServer(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if err := mgr.AddServer(&ServerConfig{Transport: TransportStdio}); err == nil {
		t.Error("expected validation error for missing ID")
	}
}

func TestManagerConnectUnknownServer(t *testing.T) {
	mgr := NewManager(nil)

	if err := mgr.Connect(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unregistered server")
	}
}

func TestManagerStatusUnconnected(t *testing.T) {
	mgr := NewManager(nil)

	configs := []*ServerConfig{
		{ID: "zeta", Name: "Zeta", Transport: TransportStdio, Command: "mcp-zeta"},
		{ID: "alpha", Name: "Alpha", Transport: TransportStdio, Command: "mcp-alpha"},
	}
	for _, cfg := range configs {
		if err := mgr.AddServer(cfg); err != nil {
			t.Fatal(err)
		}
	}

	statuses := mgr.Status()
	if len(statuses) != 2 {
		t.Fatalf("len = %d, want 2", len(statuses))
	}
	// Sorted by ID regardless of registration order.
	if statuses[0].ID != "alpha" || statuses[1].ID != "zeta" {
		t.Errorf("order = [%s, %s]", statuses[0].ID, statuses[1].ID)
	}
	if statuses[0].Connected {
		t.Error("unconnected server reported connected")
	}
}

func TestManagerCallToolNotConnected(t *testing.T) {
	mgr := NewManager(nil)

	if _, err := mgr.CallTool(context.Background(), "files", "read_file", nil); err == nil {
		t.Error("expected error for unconnected server")
	}
}

func TestManagerBridgedToolsEmpty(t *testing.T) {
	mgr := NewManager(nil)

	if tools := mgr.BridgedTools(); tools != nil {
		t.Errorf("expected nil for no connected servers, got %d tools", len(tools))
	}
}
