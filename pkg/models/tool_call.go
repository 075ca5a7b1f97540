package models

import "encoding/json"

// ToolCall is a provider's request to invoke a tool. Input carries the raw
// JSON arguments exactly as the provider produced them.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of a single tool call, keyed back to the call
// that produced it.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
