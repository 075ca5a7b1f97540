package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/flights"
)

// FlightsToolName is the flight-offer search tool.
const FlightsToolName = "search_flights"

type flightsInput struct {
	Origin      string `json:"origin" jsonschema:"description=Origin airport IATA code such as LHR"`
	Destination string `json:"destination" jsonschema:"description=Destination airport IATA code such as CDG"`
	Date        string `json:"date,omitempty" jsonschema:"description=Departure date in YYYY-MM-DD"`
	Adults      int    `json:"adults,omitempty" jsonschema:"description=Number of adult passengers"`
	MaxResults  int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of offers to return"`
}

// SearchFlightsTool searches flight offers through the flights client. Its
// raw JSON output is rewritten into readable text by the flight-offer
// transform before projection.
type SearchFlightsTool struct {
	client *flights.Client
	schema json.RawMessage
}

// NewSearchFlightsTool creates the flight search tool.
func NewSearchFlightsTool(client *flights.Client) *SearchFlightsTool {
	return &SearchFlightsTool{
		client: client,
		schema: reflectSchema(&flightsInput{}),
	}
}

func (t *SearchFlightsTool) Name() string { return FlightsToolName }

func (t *SearchFlightsTool) Description() string {
	return "Search for flight offers between two airports on a date."
}

func (t *SearchFlightsTool) Schema() json.RawMessage { return t.schema }

func (t *SearchFlightsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in flightsInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
	}

	result, err := t.client.Search(ctx, flights.SearchRequest{
		Origin:      in.Origin,
		Destination: in.Destination,
		Date:        in.Date,
		Adults:      in.Adults,
		MaxResults:  in.MaxResults,
	})
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode offers: %w", err)
	}
	return &agent.ToolResult{Content: string(data)}, nil
}
