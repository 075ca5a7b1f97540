package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Limits on tool registration and execution inputs.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10 MB
)

// ToolRegistry manages the set of tools available to the runtime.
// All methods are safe for concurrent use.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas sync.Map // tool name -> *jsonschema.Schema
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry, replacing any previous tool with
// the same name.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name exceeds %d characters: %s", MaxToolNameLength, name[:MaxToolNameLength])
	}

	r.mu.Lock()
	r.tools[name] = tool
	r.mu.Unlock()
	r.schemas.Delete(name)
	return nil
}

// Unregister removes a tool by name. Removing an unknown name is a no-op.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	delete(r.tools, name)
	r.mu.Unlock()
	r.schemas.Delete(name)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool with the given name is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered tools sorted by name, for building provider
// requests deterministically.
func (r *ToolRegistry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Execute runs a tool by name, validating params against the tool's schema
// first. Lookup, validation, and domain failures are reported as error
// results rather than Go errors so they flow back to the model as content.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return &ToolResult{
			Content: "tool not found: " + name,
			IsError: true,
		}, nil
	}

	if len(params) > MaxToolParamsSize {
		return &ToolResult{
			Content: fmt.Sprintf("tool params exceed %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	if err := r.validateInput(tool, params); err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("invalid input for tool %s: %v", name, err),
			IsError: true,
		}, nil
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return nil, NewToolError(name, err)
	}
	if result == nil {
		result = &ToolResult{}
	}
	return result, nil
}

// validateInput checks params against the tool's JSON Schema. Compiled
// schemas are cached per tool name; Register and Unregister invalidate the
// cache. Tools without a schema accept any input.
func (r *ToolRegistry) validateInput(tool Tool, params json.RawMessage) error {
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil
	}

	name := tool.Name()
	var schema *jsonschema.Schema
	if cached, ok := r.schemas.Load(name); ok {
		schema = cached.(*jsonschema.Schema)
	} else {
		compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
		if err != nil {
			return fmt.Errorf("compile schema: %w", err)
		}
		r.schemas.Store(name, compiled)
		schema = compiled
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("parse params: %w", err)
	}
	return schema.Validate(decoded)
}

// ToolCallContext carries the conversational context an execute function
// may need beyond its raw input.
type ToolCallContext struct {
	// ToolCallID identifies the call being resolved.
	ToolCallID string

	// Messages is the full projected conversation at resolution time.
	Messages []CompletionMessage
}

// ExecuteFunc runs an approved tool call and returns its result text.
// A returned error becomes an error result in the conversation; it does not
// abort the turn.
type ExecuteFunc func(ctx context.Context, input json.RawMessage, call ToolCallContext) (string, error)

// Executions maps tool names to the execute functions that run once the
// user approves a call. The mapping is immutable after construction.
type Executions struct {
	funcs map[string]ExecuteFunc
}

// NewExecutions builds the execution mapping, rejecting empty names and nil
// functions so wiring mistakes surface at startup rather than at the first
// approval.
func NewExecutions(funcs map[string]ExecuteFunc) (*Executions, error) {
	m := make(map[string]ExecuteFunc, len(funcs))
	for name, fn := range funcs {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("execution registered with empty tool name")
		}
		if fn == nil {
			return nil, fmt.Errorf("execution for tool %q is nil", name)
		}
		m[name] = fn
	}
	return &Executions{funcs: m}, nil
}

// Get returns the execute function for a tool name.
func (e *Executions) Get(name string) (ExecuteFunc, bool) {
	if e == nil {
		return nil, false
	}
	fn, ok := e.funcs[name]
	return fn, ok
}

// Has reports whether a tool name has an execute function.
func (e *Executions) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Names returns the mapped tool names in sorted order.
func (e *Executions) Names() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.funcs))
	for name := range e.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecutionFor adapts a registry tool into an ExecuteFunc, for tools whose
// approved path is the same code as their auto path.
func ExecutionFor(registry *ToolRegistry, name string) ExecuteFunc {
	return func(ctx context.Context, input json.RawMessage, _ ToolCallContext) (string, error) {
		result, err := registry.Execute(ctx, name, input)
		if err != nil {
			return "", err
		}
		if result.IsError {
			return "", fmt.Errorf("%s", result.Content)
		}
		return result.Content, nil
	}
}

// AsJSON marshals a value to a json.RawMessage, for building tool inputs in
// code and tests.
func AsJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
