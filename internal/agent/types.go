// Package agent implements the conversation runtime: history sanitation,
// approval reconciliation for gated tool calls, result transforms, provider
// projection, and the bounded tool-round loop that drives inference.
package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/concierge/pkg/models"
)

// ToolChoiceAuto lets the provider decide when to call tools.
// Requests built by the runtime always use automatic selection.
const ToolChoiceAuto = "auto"

// LLMProvider is the interface for streaming LLM completions.
//
// Implementations wrap a specific LLM API (Anthropic, OpenAI) and normalize
// its streaming format into CompletionChunk values.
type LLMProvider interface {
	// Complete sends a completion request and returns a channel of response
	// chunks. The channel is closed when the response is complete or an
	// error occurs. Errors during streaming are delivered as chunks with
	// the Error field set.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider's identifier (e.g. "anthropic", "openai").
	Name() string

	// Models returns the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether the provider handles tool definitions.
	SupportsTools() bool
}

// Model describes an available LLM model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// CompletionRequest is a provider-agnostic completion request.
type CompletionRequest struct {
	// Model is the model ID to use.
	Model string

	// System is the system prompt, sent separately from the message list.
	System string

	// Messages is the projected conversation history, oldest first.
	Messages []CompletionMessage

	// Tools the model may call this turn. Nil means no tool use.
	Tools []Tool

	// ToolChoice is the tool selection policy. Empty means ToolChoiceAuto.
	ToolChoice string

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int
}

// CompletionMessage is one message in the projected conversation.
//
// Role "user", "assistant", and "system" carry Content. Assistant messages
// additionally carry the tool calls they announced; role "tool" messages
// carry the results those calls produced.
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionChunk is a piece of a streaming completion response.
type CompletionChunk struct {
	// Text is incremental response text, if any.
	Text string `json:"text,omitempty"`

	// ToolCall is a complete tool invocation request, if any. Providers
	// accumulate streamed argument fragments and emit the call whole.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done marks the final chunk of the stream.
	Done bool `json:"done,omitempty"`

	// Error carries a stream failure. The channel closes after an error.
	Error error `json:"-"`

	// Token usage, populated on the final chunk when the provider reports it.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Tool is the interface all executable tools implement.
//
// Schema returns a JSON Schema describing the tool's parameters; the
// registry validates inputs against it before execution.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description explains what the tool does, for the model's benefit.
	Description() string

	// Schema returns the JSON Schema for the tool's input parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Domain failures should be reported as a
	// ToolResult with IsError set; returned errors are reserved for
	// infrastructure faults.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	// Content is the result text passed back to the model.
	Content string `json:"content"`

	// IsError marks the content as an error description.
	IsError bool `json:"is_error,omitempty"`
}

// RemoteTool marks tools that proxy to an external server rather than
// executing in process. The runtime records their calls as dynamic parts,
// which are exempt from approval reconciliation.
type RemoteTool interface {
	Tool
	Remote() bool
}

func isRemote(t Tool) bool {
	rt, ok := t.(RemoteTool)
	return ok && rt.Remote()
}
