package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/pkg/models"
)

// scriptedProvider plays back one canned response per Complete call.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []scriptedResponse
	requests []*CompletionRequest
	err      error
}

type scriptedResponse struct {
	text  string
	calls []models.ToolCall
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) Models() []Model     { return nil }
func (p *scriptedProvider) SupportsTools() bool { return true }

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		p.mu.Unlock()
		return nil, p.err
	}
	var resp scriptedResponse
	if len(p.script) > 0 {
		resp = p.script[0]
		p.script = p.script[1:]
	}
	p.mu.Unlock()

	chunks := make(chan *CompletionChunk)
	go func() {
		defer close(chunks)
		if resp.text != "" {
			chunks <- &CompletionChunk{Text: resp.text}
		}
		for i := range resp.calls {
			chunks <- &CompletionChunk{ToolCall: &resp.calls[i]}
		}
		chunks <- &CompletionChunk{Done: true}
	}()
	return chunks, nil
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func collectChunks(t *testing.T, ch <-chan *models.StreamChunk) []*models.StreamChunk {
	t.Helper()
	var chunks []*models.StreamChunk
	deadline := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-deadline:
			t.Fatal("turn did not finish")
		}
	}
}

func userText(sessionID, text string) *models.Message {
	return &models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Parts:     []models.Part{models.TextPart(text)},
	}
}

func TestRuntime_TextTurn(t *testing.T) {
	store := sessions.NewMemoryStore()
	provider := &scriptedProvider{script: []scriptedResponse{{text: "Hello there."}}}

	runtime, err := NewRuntime(RuntimeOptions{
		Provider: provider,
		Model:    "test-model",
		Store:    store,
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "hi"))
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	chunks := collectChunks(t, out)

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Type != models.ChunkText || chunks[0].Text != "Hello there." {
		t.Errorf("chunk[0] = %+v", chunks[0])
	}
	if chunks[1].Type != models.ChunkMessage {
		t.Errorf("chunk[1] = %+v", chunks[1])
	}

	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want 2", len(history))
	}
	if history[1].Role != models.RoleAssistant || history[1].Text() != "Hello there." {
		t.Errorf("assistant message = %+v", history[1])
	}
}

// seedPendingCall stores an assistant message whose tool part carries the
// given output sentinel, mimicking a UI decision from a previous turn.
func seedPendingCall(t *testing.T, store sessions.Store, sessionID, callID, sentinel string) *models.Message {
	t.Helper()
	ctx := context.Background()
	if _, err := store.EnsureSession(ctx, sessionID, ""); err != nil {
		t.Fatal(err)
	}
	part := models.ToolPart("get_weather", callID, json.RawMessage(`{"city":"London"}`))
	part.State = models.PartOutputAvailable
	part.Output = sentinel
	msg := &models.Message{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Parts:     []models.Part{part},
	}
	if err := store.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestRuntime_ApprovedCallExecutesBeforeInference(t *testing.T) {
	store := sessions.NewMemoryStore()
	seedPendingCall(t, store, "sess-1", "call-1", models.DecisionApproved)

	var gotInput json.RawMessage
	executions, err := NewExecutions(map[string]ExecuteFunc{
		"get_weather": func(ctx context.Context, input json.RawMessage, call ToolCallContext) (string, error) {
			gotInput = input
			return "22C, sunny", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{script: []scriptedResponse{{text: "The weather is lovely."}}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider:   provider,
		Store:      store,
		Executions: executions,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "and now?"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	// The resolver's event arrives before any inference output.
	var eventIdx, textIdx = -1, -1
	events := 0
	for i, chunk := range chunks {
		switch chunk.Type {
		case models.ChunkToolEvent:
			events++
			if eventIdx < 0 {
				eventIdx = i
			}
		case models.ChunkText:
			if textIdx < 0 {
				textIdx = i
			}
		}
	}
	if events != 1 {
		t.Fatalf("tool events = %d, want 1", events)
	}
	if eventIdx < 0 || textIdx < 0 || eventIdx > textIdx {
		t.Errorf("event at %d, text at %d; event must come first", eventIdx, textIdx)
	}

	ev := chunks[eventIdx].ToolEvent
	if ev.Stage != models.ToolEventSucceeded || ev.ToolCallID != "call-1" {
		t.Errorf("event = %+v", ev)
	}
	if string(gotInput) != `{"city":"London"}` {
		t.Errorf("executor input = %s, want the original call input", gotInput)
	}

	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	part := history[0].Parts[0]
	if part.Output != "22C, sunny" || part.State != models.PartOutputAvailable {
		t.Errorf("resolved part = %+v", part)
	}
}

func TestRuntime_DeniedCallNeverExecutes(t *testing.T) {
	store := sessions.NewMemoryStore()
	seedPendingCall(t, store, "sess-1", "call-1", models.DecisionDenied)

	executed := false
	executions, err := NewExecutions(map[string]ExecuteFunc{
		"get_weather": func(ctx context.Context, input json.RawMessage, call ToolCallContext) (string, error) {
			executed = true
			return "should not run", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{script: []scriptedResponse{{text: "Understood."}}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider:   provider,
		Store:      store,
		Executions: executions,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "no thanks"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	if executed {
		t.Error("denied call executed")
	}
	var denied *models.ToolEvent
	for _, chunk := range chunks {
		if chunk.Type == models.ChunkToolEvent {
			denied = chunk.ToolEvent
		}
	}
	if denied == nil || denied.Stage != models.ToolEventDenied {
		t.Fatalf("denied event = %+v", denied)
	}

	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := history[0].Parts[0].Output; got != DeniedResult {
		t.Errorf("part output = %q, want %q", got, DeniedResult)
	}
}

func TestRuntime_GatedCallShortCircuitsRound(t *testing.T) {
	store := sessions.NewMemoryStore()
	registry := NewToolRegistry()
	executions, err := NewExecutions(map[string]ExecuteFunc{
		"get_weather": func(ctx context.Context, input json.RawMessage, call ToolCallContext) (string, error) {
			return "22C", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{script: []scriptedResponse{
		{calls: []models.ToolCall{{ID: "call-1", Name: "get_weather", Input: json.RawMessage(`{"city":"Paris"}`)}}},
		{text: "should never be requested"},
	}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider:      provider,
		Store:         store,
		Tools:         registry,
		Executions:    executions,
		ApprovalGated: []string{"get_weather"},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "weather in Paris?"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	if provider.requestCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (gated call ends the turn)", provider.requestCount())
	}

	var requested *models.ToolEvent
	for _, chunk := range chunks {
		if chunk.Type == models.ChunkToolEvent {
			requested = chunk.ToolEvent
		}
	}
	if requested == nil || requested.Stage != models.ToolEventRequested {
		t.Fatalf("requested event = %+v", requested)
	}

	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	assistant := history[len(history)-1]
	if len(assistant.Parts) != 1 {
		t.Fatalf("assistant parts = %+v", assistant.Parts)
	}
	part := assistant.Parts[0]
	if part.State != models.PartInputAvailable || !part.Pending() {
		t.Errorf("gated part = %+v, want pending input-available", part)
	}
}

type echoTool struct {
	name   string
	result string
}

func (e *echoTool) Name() string            { return e.name }
func (e *echoTool) Description() string     { return "test tool" }
func (e *echoTool) Schema() json.RawMessage { return nil }
func (e *echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: e.result}, nil
}

func TestRuntime_AutoToolRound(t *testing.T) {
	store := sessions.NewMemoryStore()
	registry := NewToolRegistry()
	if err := registry.Register(&echoTool{name: "lookup", result: "found it"}); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{script: []scriptedResponse{
		{calls: []models.ToolCall{{ID: "call-1", Name: "lookup", Input: json.RawMessage(`{}`)}}},
		{text: "Here is what I found."},
	}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider: provider,
		Store:    store,
		Tools:    registry,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "look it up"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	if provider.requestCount() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.requestCount())
	}

	var succeeded *models.ToolEvent
	var finalText string
	for _, chunk := range chunks {
		switch chunk.Type {
		case models.ChunkToolEvent:
			succeeded = chunk.ToolEvent
		case models.ChunkText:
			finalText += chunk.Text
		}
	}
	if succeeded == nil || succeeded.Stage != models.ToolEventSucceeded || succeeded.Output != "found it" {
		t.Errorf("succeeded event = %+v", succeeded)
	}
	if finalText != "Here is what I found." {
		t.Errorf("text = %q", finalText)
	}

	// The second request carried the tool result back to the model.
	second := provider.requests[1]
	foundResult := false
	for _, msg := range second.Messages {
		for _, tr := range msg.ToolResults {
			if tr.ToolCallID == "call-1" && tr.Content == "found it" {
				foundResult = true
			}
		}
	}
	if !foundResult {
		t.Error("tool result missing from the follow-up request")
	}
}

func TestRuntime_TransformedOutputPersistsAndStreams(t *testing.T) {
	store := sessions.NewMemoryStore()
	registry := NewToolRegistry()
	if err := registry.Register(&echoTool{name: "lookup", result: `{"raw":true}`}); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{script: []scriptedResponse{
		{calls: []models.ToolCall{{ID: "call-1", Name: "lookup", Input: json.RawMessage(`{}`)}}},
		{text: "Done."},
	}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider: provider,
		Store:    store,
		Tools:    registry,
		Transforms: Transforms{
			"lookup": func(string) string { return "a readable summary" },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "look it up"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	// The event stream carries the humanized text, not the raw JSON.
	var succeeded *models.ToolEvent
	for _, chunk := range chunks {
		if chunk.Type == models.ChunkToolEvent {
			succeeded = chunk.ToolEvent
		}
	}
	if succeeded == nil || succeeded.Output != "a readable summary" {
		t.Errorf("event = %+v, want transformed output", succeeded)
	}

	// So does the persisted transcript.
	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	assistant := history[len(history)-1]
	if got := assistant.Parts[0].Output; got != "a readable summary" {
		t.Errorf("stored output = %q, want transformed output", got)
	}

	// And the follow-up request to the model.
	second := provider.requests[1]
	found := false
	for _, msg := range second.Messages {
		for _, tr := range msg.ToolResults {
			if tr.ToolCallID == "call-1" && tr.Content == "a readable summary" {
				found = true
			}
		}
	}
	if !found {
		t.Error("transformed result missing from the follow-up request")
	}
}

func TestRuntime_TransformedResolvedOutputPersists(t *testing.T) {
	store := sessions.NewMemoryStore()
	seedPendingCall(t, store, "sess-1", "call-1", models.DecisionApproved)

	executions, err := NewExecutions(map[string]ExecuteFunc{
		"get_weather": func(context.Context, json.RawMessage, ToolCallContext) (string, error) {
			return `{"temp":22,"sky":"sunny"}`, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{script: []scriptedResponse{{text: "Lovely."}}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider:   provider,
		Store:      store,
		Executions: executions,
		Transforms: Transforms{
			"get_weather": func(string) string { return "22C, sunny" },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "and now?"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	var resolved *models.ToolEvent
	for _, chunk := range chunks {
		if chunk.Type == models.ChunkToolEvent {
			resolved = chunk.ToolEvent
		}
	}
	if resolved == nil || resolved.Output != "22C, sunny" {
		t.Errorf("event = %+v, want transformed output", resolved)
	}

	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := history[0].Parts[0].Output; got != "22C, sunny" {
		t.Errorf("stored output = %q, want transformed output", got)
	}
}

func TestRuntime_BudgetExhausted(t *testing.T) {
	store := sessions.NewMemoryStore()
	registry := NewToolRegistry()
	if err := registry.Register(&echoTool{name: "loop", result: "again"}); err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "call-n", Name: "loop", Input: json.RawMessage(`{}`)}
	provider := &scriptedProvider{script: []scriptedResponse{
		{calls: []models.ToolCall{call}},
		{calls: []models.ToolCall{call}},
		{calls: []models.ToolCall{call}},
	}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider:      provider,
		Store:         store,
		Tools:         registry,
		MaxToolRounds: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "go"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	if provider.requestCount() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.requestCount())
	}
	last := chunks[len(chunks)-1]
	if last.Type != models.ChunkMessage {
		t.Fatalf("last chunk = %+v", last)
	}
	if !strings.Contains(last.Message.Text(), "tool call limit") {
		t.Errorf("final text = %q", last.Message.Text())
	}
}

func TestRuntime_ProviderFailureEndsTurn(t *testing.T) {
	store := sessions.NewMemoryStore()
	provider := &scriptedProvider{err: errors.New("upstream down")}

	runtime, err := NewRuntime(RuntimeOptions{
		Provider: provider,
		Store:    store,
	})
	if err != nil {
		t.Fatal(err)
	}

	finished := false
	runtime.opts.OnFinish = func(final *models.Message, events []*models.ToolEvent) {
		finished = true
	}

	out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "hello?"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, out)

	if len(chunks) != 1 || chunks[0].Type != models.ChunkError {
		t.Fatalf("chunks = %+v, want single error chunk", chunks)
	}
	if finished {
		t.Error("finish callback ran on a failed turn")
	}

	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	// Only the user message persists; no assistant message for a failed turn.
	if len(history) != 1 || history[0].Role != models.RoleUser {
		t.Errorf("history = %+v", history)
	}
}

func TestRuntime_TurnsSerializePerSession(t *testing.T) {
	store := sessions.NewMemoryStore()
	provider := &scriptedProvider{script: []scriptedResponse{
		{text: "first"},
		{text: "second"},
	}}
	runtime, err := NewRuntime(RuntimeOptions{
		Provider: provider,
		Store:    store,
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := runtime.ProcessTurn(context.Background(), userText("sess-1", "go"))
			if err != nil {
				t.Errorf("ProcessTurn: %v", err)
				return
			}
			for range out {
			}
		}()
	}
	wg.Wait()

	history, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	// Two full turns: strict user/assistant alternation, no interleaving.
	if len(history) != 4 {
		t.Fatalf("history = %d messages, want 4", len(history))
	}
	for i, msg := range history {
		wantRole := models.RoleUser
		if i%2 == 1 {
			wantRole = models.RoleAssistant
		}
		if msg.Role != wantRole {
			t.Errorf("message %d role = %q, want %q", i, msg.Role, wantRole)
		}
	}
}
