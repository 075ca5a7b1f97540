package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
)

// WeatherToolName is the approval-gated weather lookup.
const WeatherToolName = "get_weather"

// LocalTimeToolName is the auto-executing local time lookup.
const LocalTimeToolName = "get_local_time"

type weatherInput struct {
	City string `json:"city" jsonschema:"description=City name to get weather for"`
}

// Deterministic conditions so conversations replay identically offline.
var weatherFixtures = map[string]string{
	"london":   "22C, sunny",
	"paris":    "24C, clear",
	"tokyo":    "27C, humid",
	"new york": "18C, overcast",
	"sydney":   "16C, windy",
}

// WeatherTool reports current weather for a city. It is approval-gated:
// calls surface to the UI as pending parts and only run once the user
// approves.
type WeatherTool struct {
	schema json.RawMessage
}

// NewWeatherTool creates the weather tool.
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{schema: reflectSchema(&weatherInput{})}
}

func (t *WeatherTool) Name() string { return WeatherToolName }

func (t *WeatherTool) Description() string {
	return "Get the current weather for a city. Requires user approval before running."
}

func (t *WeatherTool) Schema() json.RawMessage { return t.schema }

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	out, err := WeatherExecution(ctx, params, agent.ToolCallContext{})
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: out}, nil
}

// WeatherExecution is the execute function the resolver runs on approval.
func WeatherExecution(ctx context.Context, input json.RawMessage, call agent.ToolCallContext) (string, error) {
	var in weatherInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid weather input: %w", err)
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	if fixture, ok := weatherFixtures[strings.ToLower(city)]; ok {
		return fixture, nil
	}
	return "21C, mild", nil
}

type localTimeInput struct {
	Timezone string `json:"timezone" jsonschema:"description=IANA timezone name such as Europe/London"`
}

// LocalTimeTool reports the current time in a timezone. Unlike the weather
// tool it executes without approval.
type LocalTimeTool struct {
	schema json.RawMessage
	now    func() time.Time
}

// NewLocalTimeTool creates the local time tool.
func NewLocalTimeTool() *LocalTimeTool {
	return &LocalTimeTool{
		schema: reflectSchema(&localTimeInput{}),
		now:    time.Now,
	}
}

func (t *LocalTimeTool) Name() string { return LocalTimeToolName }

func (t *LocalTimeTool) Description() string {
	return "Get the current local time in a timezone."
}

func (t *LocalTimeTool) Schema() json.RawMessage { return t.schema }

func (t *LocalTimeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in localTimeInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
	}
	name := strings.TrimSpace(in.Timezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("unknown timezone %q", name), IsError: true}, nil
	}
	now := t.now().In(loc)
	return &agent.ToolResult{
		Content: fmt.Sprintf("It is %s in %s.", now.Format("3:04 PM on Monday, January 2"), name),
	}, nil
}
