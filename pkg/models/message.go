package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartState tracks a tool part through its lifecycle. States only move
// forward: input-streaming -> input-available -> output-available.
type PartState string

const (
	PartInputStreaming  PartState = "input-streaming"
	PartInputAvailable  PartState = "input-available"
	PartOutputAvailable PartState = "output-available"
	PartOutputError     PartState = "output-error"
)

// Decision sentinels the UI writes into a tool part's Output when the user
// approves or denies a gated call. Matching is exact.
const (
	DecisionApproved = "Yes, confirmed."
	DecisionDenied   = "No, denied."
)

// Part type discriminators. Tool parts carry the tool name in the type
// (tool-get_weather); remote tools discovered at runtime use the generic
// dynamic-tool type and carry the name in ToolName.
const (
	PartTypeText        = "text"
	PartTypeDynamicTool = "dynamic-tool"

	toolPartPrefix = "tool-"
)

// Message is a single conversation entry, composed of ordered parts.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Part is one segment of a message: plain text or a tool invocation with its
// full lifecycle state.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	State      PartState       `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`
	Dynamic    bool            `json:"dynamic,omitempty"`
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ToolPart builds a tool part in input-available state.
func ToolPart(name, callID string, input json.RawMessage) Part {
	return Part{
		Type:       toolPartPrefix + name,
		ToolCallID: callID,
		ToolName:   name,
		State:      PartInputAvailable,
		Input:      input,
	}
}

// DynamicToolPart builds a part for a remote tool call.
func DynamicToolPart(name, callID string, input json.RawMessage) Part {
	p := ToolPart(name, callID, input)
	p.Type = PartTypeDynamicTool
	p.Dynamic = true
	return p
}

// IsText reports whether the part is plain text.
func (p *Part) IsText() bool {
	return p.Type == PartTypeText
}

// IsTool reports whether the part represents a tool invocation.
func (p *Part) IsTool() bool {
	return p.Type == PartTypeDynamicTool || strings.HasPrefix(p.Type, toolPartPrefix)
}

// Tool returns the tool name for a tool part. ToolName wins when set;
// otherwise the name embedded in the type discriminator is used.
func (p *Part) Tool() string {
	if p.ToolName != "" {
		return p.ToolName
	}
	if strings.HasPrefix(p.Type, toolPartPrefix) {
		return strings.TrimPrefix(p.Type, toolPartPrefix)
	}
	return ""
}

// Pending reports whether the part is an unfinished tool invocation: still
// streaming its input, or holding complete input with no output, error, or
// decision recorded yet. Non-tool parts are never pending.
func (p *Part) Pending() bool {
	if !p.IsTool() {
		return false
	}
	switch p.State {
	case PartInputStreaming:
		return true
	case PartInputAvailable:
		return p.Output == "" && p.ErrorText == ""
	}
	return false
}

// Decision reports whether the part carries an unresolved approval decision,
// and what that decision was.
func (p *Part) Decision() (approved, ok bool) {
	if !p.IsTool() || p.State != PartOutputAvailable {
		return false, false
	}
	switch p.Output {
	case DecisionApproved:
		return true, true
	case DecisionDenied:
		return false, true
	}
	return false, false
}

// Resolved reports whether the part holds a real tool output, as opposed to
// a decision sentinel or nothing at all.
func (p *Part) Resolved() bool {
	if !p.IsTool() || p.State != PartOutputAvailable || p.Output == "" {
		return false
	}
	_, isDecision := p.Decision()
	return !isDecision
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.IsText() {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HasPendingTool reports whether any part of the message is a pending tool
// invocation.
func (m *Message) HasPendingTool() bool {
	for i := range m.Parts {
		if m.Parts[i].Pending() {
			return true
		}
	}
	return false
}

// ToolParts returns pointers to the message's tool parts in order.
func (m *Message) ToolParts() []*Part {
	var parts []*Part
	for i := range m.Parts {
		if m.Parts[i].IsTool() {
			parts = append(parts, &m.Parts[i])
		}
	}
	return parts
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() Message {
	out := *m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			cp := p
			if p.Input != nil {
				cp.Input = append(json.RawMessage(nil), p.Input...)
			}
			out.Parts[i] = cp
		}
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Clone()
	}
	return out
}

// Session represents a conversation thread.
type Session struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
