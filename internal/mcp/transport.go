package mcp

import (
	"context"
	"encoding/json"
)

// Transport carries JSON-RPC traffic to one MCP server.
type Transport interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Close tears the connection down.
	Close() error

	// Call sends a request and waits for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification, no response expected.
	Notify(ctx context.Context, method string, params any) error

	// Events delivers notifications pushed by the server.
	Events() <-chan *JSONRPCNotification

	// Connected reports whether the transport is usable.
	Connected() bool
}

// NewTransport picks the transport for a server config. Stdio is the
// default when no transport is named.
func NewTransport(cfg *ServerConfig) Transport {
	if cfg.Transport == TransportHTTP {
		return NewHTTPTransport(cfg)
	}
	return NewStdioTransport(cfg)
}
