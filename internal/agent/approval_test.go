package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustExecutions(t *testing.T, funcs map[string]ExecuteFunc) *Executions {
	t.Helper()
	execs, err := NewExecutions(funcs)
	if err != nil {
		t.Fatalf("NewExecutions: %v", err)
	}
	return execs
}

func TestResolver_ApprovedCallExecutes(t *testing.T) {
	var calls atomic.Int32
	var gotInput, gotCallID string
	var gotMessages int

	execs := mustExecutions(t, map[string]ExecuteFunc{
		"get_weather": func(ctx context.Context, input json.RawMessage, call ToolCallContext) (string, error) {
			calls.Add(1)
			gotInput = string(input)
			gotCallID = call.ToolCallID
			gotMessages = len(call.Messages)
			return "22C, sunny", nil
		},
	})
	resolver := NewResolver(execs, ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		textMsg(models.RoleUser, "what's the weather in London?"),
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("get_weather", "call-1", `{"city":"London"}`, models.DecisionApproved),
		}},
	}

	var events []*models.ToolEvent
	modified := resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		events = append(events, ev)
	})

	if got := calls.Load(); got != 1 {
		t.Errorf("execute function ran %d times, want 1", got)
	}
	if gotInput != `{"city":"London"}` {
		t.Errorf("execute input = %q, want original call input", gotInput)
	}
	if gotCallID != "call-1" {
		t.Errorf("execute call id = %q, want call-1", gotCallID)
	}
	if gotMessages == 0 {
		t.Error("execute context carried no projected messages")
	}

	part := msgs[1].Parts[0]
	if part.Output != "22C, sunny" {
		t.Errorf("part output = %q, want %q", part.Output, "22C, sunny")
	}
	if part.State != models.PartOutputAvailable {
		t.Errorf("part state = %q, want %q", part.State, models.PartOutputAvailable)
	}
	if string(part.Input) != `{"city":"London"}` {
		t.Errorf("part input changed: %s", part.Input)
	}

	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Stage != models.ToolEventSucceeded {
		t.Errorf("event stage = %q, want %q", ev.Stage, models.ToolEventSucceeded)
	}
	if ev.ToolCallID != "call-1" || ev.ToolName != "get_weather" {
		t.Errorf("event identity = %q/%q", ev.ToolCallID, ev.ToolName)
	}
	if ev.Output != "22C, sunny" {
		t.Errorf("event output = %q", ev.Output)
	}

	if len(modified) != 1 || modified[0] != 1 {
		t.Errorf("modified indexes = %v, want [1]", modified)
	}
}

func TestResolver_DeniedCallNeverExecutes(t *testing.T) {
	var calls atomic.Int32
	execs := mustExecutions(t, map[string]ExecuteFunc{
		"get_weather": func(context.Context, json.RawMessage, ToolCallContext) (string, error) {
			calls.Add(1)
			return "22C, sunny", nil
		},
	})
	resolver := NewResolver(execs, ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("get_weather", "call-1", `{"city":"London"}`, models.DecisionDenied),
		}},
	}

	var events []*models.ToolEvent
	resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		events = append(events, ev)
	})

	if got := calls.Load(); got != 0 {
		t.Errorf("execute function ran %d times, want 0", got)
	}
	if got := msgs[0].Parts[0].Output; got != DeniedResult {
		t.Errorf("part output = %q, want %q", got, DeniedResult)
	}
	if len(events) != 1 || events[0].Stage != models.ToolEventDenied {
		t.Fatalf("events = %+v, want one denied event", events)
	}
}

func TestResolver_UnregisteredToolLeftUntouched(t *testing.T) {
	resolver := NewResolver(mustExecutions(t, nil), ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("mystery_tool", "call-1", `{}`, models.DecisionApproved),
			decidedPart("other_tool", "call-2", `{}`, models.DecisionDenied),
		}},
	}

	var events []*models.ToolEvent
	modified := resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		events = append(events, ev)
	})

	// Tools outside the execution mapping are not gated: an output that
	// happens to look like a decision sentinel is real content.
	if got := msgs[0].Parts[0].Output; got != models.DecisionApproved {
		t.Errorf("part output = %q, want the sentinel left in place", got)
	}
	if got := msgs[0].Parts[1].Output; got != models.DecisionDenied {
		t.Errorf("part output = %q, want the sentinel left in place", got)
	}
	if len(events) != 0 || len(modified) != 0 {
		t.Errorf("unregistered tool produced events %v, modified %v", events, modified)
	}
}

func TestResolver_TransformAppliesToApprovedOutput(t *testing.T) {
	execs := mustExecutions(t, map[string]ExecuteFunc{
		"searchFlights": func(context.Context, json.RawMessage, ToolCallContext) (string, error) {
			return `{"offers":[]}`, nil
		},
	})
	resolver := NewResolver(execs, ResolverConfig{
		Logger: quietLogger(),
		Transforms: Transforms{
			"searchFlights": func(string) string { return "Found 0 flights:" },
		},
	})

	msgs := []models.Message{
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("searchFlights", "call-1", `{}`, models.DecisionApproved),
		}},
	}

	var events []*models.ToolEvent
	resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		events = append(events, ev)
	})

	if got := msgs[0].Parts[0].Output; got != "Found 0 flights:" {
		t.Errorf("part output = %q, want the transformed text", got)
	}
	if len(events) != 1 || events[0].Output != "Found 0 flights:" {
		t.Fatalf("events = %+v, want one event with the transformed output", events)
	}
}

func TestResolver_ExecuteErrorBecomesResult(t *testing.T) {
	execs := mustExecutions(t, map[string]ExecuteFunc{
		"searchFlights": func(context.Context, json.RawMessage, ToolCallContext) (string, error) {
			return "", errors.New("backend unavailable")
		},
	})
	resolver := NewResolver(execs, ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("searchFlights", "call-1", `{}`, models.DecisionApproved),
		}},
	}

	var events []*models.ToolEvent
	resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		events = append(events, ev)
	})

	if got := msgs[0].Parts[0].Output; got != "Error: backend unavailable" {
		t.Errorf("part output = %q, want %q", got, "Error: backend unavailable")
	}
	ev := events[0]
	if ev.Stage != models.ToolEventFailed || ev.Error != "backend unavailable" {
		t.Errorf("event = %+v, want failed with error text", ev)
	}
}

func TestResolver_ExecutePanicBecomesResult(t *testing.T) {
	execs := mustExecutions(t, map[string]ExecuteFunc{
		"get_weather": func(context.Context, json.RawMessage, ToolCallContext) (string, error) {
			panic("boom")
		},
	})
	resolver := NewResolver(execs, ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("get_weather", "call-1", `{}`, models.DecisionApproved),
		}},
	}

	var events []*models.ToolEvent
	resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		events = append(events, ev)
	})

	got := msgs[0].Parts[0].Output
	if !strings.HasPrefix(got, "Error: panic: boom") {
		t.Errorf("part output = %q, want panic error result", got)
	}
	if len(events) != 1 || events[0].Stage != models.ToolEventFailed {
		t.Fatalf("events = %+v, want one failed event", events)
	}
}

func TestResolver_ResolvedOutputNeverReexecutes(t *testing.T) {
	var calls atomic.Int32
	execs := mustExecutions(t, map[string]ExecuteFunc{
		"get_weather": func(context.Context, json.RawMessage, ToolCallContext) (string, error) {
			calls.Add(1)
			return "fresh", nil
		},
	})
	resolver := NewResolver(execs, ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		{Role: models.RoleAssistant, Parts: []models.Part{
			resolvedPart("get_weather", "call-1", "22C, sunny"),
		}},
	}

	var events []*models.ToolEvent
	modified := resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		events = append(events, ev)
	})

	if got := calls.Load(); got != 0 {
		t.Errorf("execute function ran %d times on settled output", got)
	}
	if got := msgs[0].Parts[0].Output; got != "22C, sunny" {
		t.Errorf("settled output changed to %q", got)
	}
	if len(events) != 0 || len(modified) != 0 {
		t.Errorf("settled part produced events %v, modified %v", events, modified)
	}
}

func TestResolver_DynamicPartsSkipped(t *testing.T) {
	var calls atomic.Int32
	execs := mustExecutions(t, map[string]ExecuteFunc{
		"remote_list": func(context.Context, json.RawMessage, ToolCallContext) (string, error) {
			calls.Add(1)
			return "x", nil
		},
	})
	resolver := NewResolver(execs, ResolverConfig{Logger: quietLogger()})

	part := models.DynamicToolPart("remote_list", "call-1", json.RawMessage(`{}`))
	part.State = models.PartOutputAvailable
	part.Output = models.DecisionApproved

	msgs := []models.Message{{Role: models.RoleAssistant, Parts: []models.Part{part}}}

	resolver.Resolve(context.Background(), msgs, nil)

	if got := calls.Load(); got != 0 {
		t.Errorf("execute function ran %d times for a dynamic part", got)
	}
	if got := msgs[0].Parts[0].Output; got != models.DecisionApproved {
		t.Errorf("dynamic part output changed to %q", got)
	}
}

func TestResolver_EventsFollowPartOrder(t *testing.T) {
	delays := map[string]time.Duration{
		"alpha": 30 * time.Millisecond,
		"beta":  10 * time.Millisecond,
		"gamma": 0,
	}
	funcs := make(map[string]ExecuteFunc, len(delays))
	for name, delay := range delays {
		funcs[name] = func(ctx context.Context, _ json.RawMessage, _ ToolCallContext) (string, error) {
			time.Sleep(delay)
			return "done", nil
		}
	}
	resolver := NewResolver(mustExecutions(t, funcs), ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("alpha", "call-a", `{}`, models.DecisionApproved),
			decidedPart("beta", "call-b", `{}`, models.DecisionApproved),
		}},
		{Role: models.RoleAssistant, Parts: []models.Part{
			decidedPart("gamma", "call-c", `{}`, models.DecisionDenied),
		}},
	}

	var order []string
	modified := resolver.Resolve(context.Background(), msgs, func(ev *models.ToolEvent) {
		order = append(order, ev.ToolCallID)
	})

	want := []string{"call-a", "call-b", "call-c"}
	if len(order) != len(want) {
		t.Fatalf("emitted %d events, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, order[i], want[i])
		}
	}
	if len(modified) != 2 {
		t.Errorf("modified indexes = %v, want two messages", modified)
	}
}

func TestResolver_NoDecisionsNoEvents(t *testing.T) {
	resolver := NewResolver(mustExecutions(t, nil), ResolverConfig{Logger: quietLogger()})

	msgs := []models.Message{
		textMsg(models.RoleUser, "hello"),
		textMsg(models.RoleAssistant, "hi there"),
	}

	called := false
	modified := resolver.Resolve(context.Background(), msgs, func(*models.ToolEvent) { called = true })
	if called || len(modified) != 0 {
		t.Errorf("resolver acted on a text-only history: called=%v modified=%v", called, modified)
	}
}
