// Package tools implements the built-in local tool set: weather and local
// time, flight search, and task scheduling. Each tool reflects its input
// schema from a Go struct.
package tools

import (
	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/flights"
	"github.com/haasonsaas/concierge/internal/schedule"
)

// Set bundles everything the runtime needs to serve the local tools.
type Set struct {
	// Tools go into the registry, in registration order.
	Tools []agent.Tool

	// Executions back the approval-gated tools.
	Executions map[string]agent.ExecuteFunc

	// ApprovalGated names the tools that wait for a user decision.
	ApprovalGated []string

	// Transforms rewrite tool outputs for presentation.
	Transforms agent.Transforms
}

// NewSet builds the local tool set. The scheduler may be nil, which drops
// the scheduling tools; the flights client may be nil, which drops flight
// search.
func NewSet(flightsClient *flights.Client, scheduler *schedule.Scheduler) *Set {
	s := &Set{
		Executions: map[string]agent.ExecuteFunc{
			WeatherToolName: WeatherExecution,
		},
		ApprovalGated: []string{WeatherToolName},
		Transforms:    agent.Transforms{},
	}

	s.Tools = append(s.Tools, NewWeatherTool(), NewLocalTimeTool())

	if flightsClient != nil {
		s.Tools = append(s.Tools, NewSearchFlightsTool(flightsClient))
		s.Transforms[FlightsToolName] = flights.HumanizeOffers
	}
	if scheduler != nil {
		s.Tools = append(s.Tools,
			NewScheduleTaskTool(scheduler),
			NewListTasksTool(scheduler),
			NewCancelTaskTool(scheduler),
		)
	}
	return s
}
