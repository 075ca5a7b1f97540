package models

import (
	"encoding/json"
	"testing"
)

func TestPart_Pending(t *testing.T) {
	tests := []struct {
		name string
		part Part
		want bool
	}{
		{
			name: "streaming input",
			part: Part{Type: "tool-get_weather", State: PartInputStreaming},
			want: true,
		},
		{
			name: "input available no output",
			part: Part{Type: "tool-get_weather", State: PartInputAvailable, Input: json.RawMessage(`{}`)},
			want: true,
		},
		{
			name: "input available with output",
			part: Part{Type: "tool-get_weather", State: PartInputAvailable, Output: "22C"},
			want: false,
		},
		{
			name: "input available with error",
			part: Part{Type: "tool-get_weather", State: PartInputAvailable, ErrorText: "boom"},
			want: false,
		},
		{
			name: "output available",
			part: Part{Type: "tool-get_weather", State: PartOutputAvailable, Output: "22C"},
			want: false,
		},
		{
			name: "text part never pending",
			part: Part{Type: PartTypeText, Text: "hello"},
			want: false,
		},
		{
			name: "dynamic tool streaming",
			part: Part{Type: PartTypeDynamicTool, ToolName: "mcp_files_read", State: PartInputStreaming},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.part.Pending(); got != tt.want {
				t.Errorf("Pending() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPart_Decision(t *testing.T) {
	tests := []struct {
		name         string
		part         Part
		wantApproved bool
		wantOK       bool
	}{
		{
			name:         "approved sentinel",
			part:         Part{Type: "tool-get_weather", State: PartOutputAvailable, Output: DecisionApproved},
			wantApproved: true,
			wantOK:       true,
		},
		{
			name:   "denied sentinel",
			part:   Part{Type: "tool-get_weather", State: PartOutputAvailable, Output: DecisionDenied},
			wantOK: true,
		},
		{
			name: "real output is not a decision",
			part: Part{Type: "tool-get_weather", State: PartOutputAvailable, Output: "22C, sunny"},
		},
		{
			name: "sentinel text in wrong state",
			part: Part{Type: "tool-get_weather", State: PartInputAvailable, Output: DecisionApproved},
		},
		{
			name: "text part",
			part: Part{Type: PartTypeText, Text: DecisionApproved},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved, ok := tt.part.Decision()
			if approved != tt.wantApproved || ok != tt.wantOK {
				t.Errorf("Decision() = (%v, %v), want (%v, %v)", approved, ok, tt.wantApproved, tt.wantOK)
			}
		})
	}
}

func TestPart_Resolved(t *testing.T) {
	real := Part{Type: "tool-get_weather", State: PartOutputAvailable, Output: "22C, sunny"}
	if !real.Resolved() {
		t.Error("real output should be resolved")
	}

	sentinel := Part{Type: "tool-get_weather", State: PartOutputAvailable, Output: DecisionApproved}
	if sentinel.Resolved() {
		t.Error("decision sentinel should not count as resolved")
	}

	empty := Part{Type: "tool-get_weather", State: PartOutputAvailable}
	if empty.Resolved() {
		t.Error("empty output should not count as resolved")
	}
}

func TestPart_Tool(t *testing.T) {
	tests := []struct {
		name string
		part Part
		want string
	}{
		{"typed tool part", Part{Type: "tool-search_flights"}, "search_flights"},
		{"tool name field wins", Part{Type: "tool-old_name", ToolName: "new_name"}, "new_name"},
		{"dynamic tool", Part{Type: PartTypeDynamicTool, ToolName: "mcp_files_read"}, "mcp_files_read"},
		{"text part", Part{Type: PartTypeText}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.part.Tool(); got != tt.want {
				t.Errorf("Tool() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolPart_Constructors(t *testing.T) {
	p := ToolPart("get_weather", "call-1", json.RawMessage(`{"city":"London"}`))
	if p.Type != "tool-get_weather" {
		t.Errorf("Type = %q, want %q", p.Type, "tool-get_weather")
	}
	if p.State != PartInputAvailable {
		t.Errorf("State = %q, want %q", p.State, PartInputAvailable)
	}
	if p.Tool() != "get_weather" {
		t.Errorf("Tool() = %q, want %q", p.Tool(), "get_weather")
	}

	d := DynamicToolPart("mcp_files_read", "call-2", nil)
	if d.Type != PartTypeDynamicTool {
		t.Errorf("Type = %q, want %q", d.Type, PartTypeDynamicTool)
	}
	if !d.Dynamic {
		t.Error("Dynamic should be true")
	}
	if d.Tool() != "mcp_files_read" {
		t.Errorf("Tool() = %q, want %q", d.Tool(), "mcp_files_read")
	}
}

func TestMessage_Text(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart("Hello, "),
			ToolPart("get_weather", "call-1", nil),
			TextPart("world"),
		},
	}
	if got := msg.Text(); got != "Hello, world" {
		t.Errorf("Text() = %q, want %q", got, "Hello, world")
	}
}

func TestMessage_HasPendingTool(t *testing.T) {
	pending := Message{Parts: []Part{
		TextPart("checking"),
		{Type: "tool-get_weather", State: PartInputStreaming},
	}}
	if !pending.HasPendingTool() {
		t.Error("message with streaming part should report pending")
	}

	done := Message{Parts: []Part{
		{Type: "tool-get_weather", State: PartOutputAvailable, Output: "22C"},
	}}
	if done.HasPendingTool() {
		t.Error("message with finished part should not report pending")
	}
}

func TestMessage_Clone(t *testing.T) {
	orig := Message{
		ID:   "msg-1",
		Role: RoleAssistant,
		Parts: []Part{
			{Type: "tool-get_weather", ToolCallID: "call-1", State: PartOutputAvailable,
				Input: json.RawMessage(`{"city":"London"}`), Output: "22C"},
		},
		Metadata: map[string]any{"source": "test"},
	}

	clone := orig.Clone()
	clone.Parts[0].Output = "changed"
	clone.Parts[0].Input[2] = 'X'
	clone.Metadata["source"] = "mutated"

	if orig.Parts[0].Output != "22C" {
		t.Errorf("clone mutation leaked into original output: %q", orig.Parts[0].Output)
	}
	if string(orig.Parts[0].Input) != `{"city":"London"}` {
		t.Errorf("clone mutation leaked into original input: %s", orig.Parts[0].Input)
	}
	if orig.Metadata["source"] != "test" {
		t.Errorf("clone mutation leaked into original metadata: %v", orig.Metadata["source"])
	}
}

func TestDecisionSentinels(t *testing.T) {
	if DecisionApproved != "Yes, confirmed." {
		t.Errorf("DecisionApproved = %q", DecisionApproved)
	}
	if DecisionDenied != "No, denied." {
		t.Errorf("DecisionDenied = %q", DecisionDenied)
	}
}
