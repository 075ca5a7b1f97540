package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// stubTool is a minimal Tool for registry tests.
type stubTool struct {
	name   string
	schema string
	fn     func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool" }

func (s *stubTool) Schema() json.RawMessage {
	if s.schema == "" {
		return nil
	}
	return json.RawMessage(s.schema)
}

func (s *stubTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if s.fn == nil {
		return &ToolResult{Content: "ok"}, nil
	}
	return s.fn(ctx, params)
}

const citySchema = `{
	"type": "object",
	"properties": {"city": {"type": "string"}},
	"required": ["city"],
	"additionalProperties": false
}`

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.Register(&stubTool{name: "get_weather"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tool, ok := registry.Get("get_weather")
	if !ok || tool.Name() != "get_weather" {
		t.Errorf("Get returned %v, %v", tool, ok)
	}
	if !registry.Has("get_weather") {
		t.Error("Has(get_weather) = false")
	}
	if registry.Has("missing") {
		t.Error("Has(missing) = true")
	}
}

func TestToolRegistry_RegisterValidation(t *testing.T) {
	registry := NewToolRegistry()

	if err := registry.Register(nil); err == nil {
		t.Error("Register(nil) succeeded")
	}
	if err := registry.Register(&stubTool{name: ""}); err == nil {
		t.Error("Register with empty name succeeded")
	}
	if err := registry.Register(&stubTool{name: strings.Repeat("x", MaxToolNameLength+1)}); err == nil {
		t.Error("Register with oversized name succeeded")
	}
}

func TestToolRegistry_NamesAndAllSorted(t *testing.T) {
	registry := NewToolRegistry()
	for _, name := range []string{"zulu", "alpha", "mike"} {
		if err := registry.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	want := []string{"alpha", "mike", "zulu"}
	got := registry.Names()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	all := registry.All()
	for i := range want {
		if all[i].Name() != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, all[i].Name(), want[i])
		}
	}
}

func TestToolRegistry_ExecuteUnknownTool(t *testing.T) {
	registry := NewToolRegistry()

	result, err := registry.Execute(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "tool not found") {
		t.Errorf("result = %+v, want tool-not-found error result", result)
	}
}

func TestToolRegistry_ExecuteValidatesSchema(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.Register(&stubTool{name: "get_weather", schema: citySchema}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name    string
		params  string
		wantErr bool
	}{
		{"valid", `{"city":"London"}`, false},
		{"missing required", `{}`, true},
		{"wrong type", `{"city":5}`, true},
		{"extra property", `{"city":"London","units":"metric"}`, true},
		{"not json", `{broken`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := registry.Execute(context.Background(), "get_weather", json.RawMessage(tt.params))
			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}
			if result.IsError != tt.wantErr {
				t.Errorf("IsError = %v, want %v (content %q)", result.IsError, tt.wantErr, result.Content)
			}
			if tt.wantErr && !strings.Contains(result.Content, "invalid input") {
				t.Errorf("error content = %q, want invalid input message", result.Content)
			}
		})
	}
}

func TestToolRegistry_ExecuteWrapsToolErrors(t *testing.T) {
	registry := NewToolRegistry()
	boom := errors.New("connection refused")
	err := registry.Register(&stubTool{
		name: "flaky",
		fn: func(context.Context, json.RawMessage) (*ToolResult, error) {
			return nil, boom
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, execErr := registry.Execute(context.Background(), "flaky", nil)
	if execErr == nil {
		t.Fatal("Execute returned nil error")
	}
	toolErr, ok := GetToolError(execErr)
	if !ok {
		t.Fatalf("error %v is not a ToolError", execErr)
	}
	if toolErr.Type != ToolErrorNetwork {
		t.Errorf("classified as %q, want %q", toolErr.Type, ToolErrorNetwork)
	}
	if !errors.Is(execErr, boom) {
		t.Error("cause not preserved in error chain")
	}
}

func TestToolRegistry_Unregister(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.Register(&stubTool{name: "get_weather", schema: citySchema}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	registry.Unregister("get_weather")
	if registry.Has("get_weather") {
		t.Error("tool still registered after Unregister")
	}
}

func TestNewExecutions_Validation(t *testing.T) {
	if _, err := NewExecutions(map[string]ExecuteFunc{"": func(context.Context, json.RawMessage, ToolCallContext) (string, error) { return "", nil }}); err == nil {
		t.Error("empty tool name accepted")
	}
	if _, err := NewExecutions(map[string]ExecuteFunc{"get_weather": nil}); err == nil {
		t.Error("nil execute function accepted")
	}

	execs, err := NewExecutions(map[string]ExecuteFunc{
		"b_tool": func(context.Context, json.RawMessage, ToolCallContext) (string, error) { return "", nil },
		"a_tool": func(context.Context, json.RawMessage, ToolCallContext) (string, error) { return "", nil },
	})
	if err != nil {
		t.Fatalf("NewExecutions: %v", err)
	}
	names := execs.Names()
	if len(names) != 2 || names[0] != "a_tool" || names[1] != "b_tool" {
		t.Errorf("Names() = %v, want sorted [a_tool b_tool]", names)
	}
	if !execs.Has("a_tool") || execs.Has("zzz") {
		t.Error("Has lookup misbehaved")
	}
}

func TestExecutionFor_AdaptsRegistryTool(t *testing.T) {
	registry := NewToolRegistry()
	err := registry.Register(&stubTool{
		name: "get_local_time",
		fn: func(context.Context, json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "14:05"}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	fn := ExecutionFor(registry, "get_local_time")
	got, err := fn(context.Background(), nil, ToolCallContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "14:05" {
		t.Errorf("result = %q, want %q", got, "14:05")
	}

	missing := ExecutionFor(registry, "nope")
	if _, err := missing(context.Background(), nil, ToolCallContext{}); err == nil {
		t.Error("missing tool produced no error")
	}
}
