package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/concierge/internal/observability"
	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/pkg/models"
)

const (
	// DefaultMaxToolRounds bounds inference/execution cycles per turn.
	DefaultMaxToolRounds = 10

	// chunkBuffer sizes a turn's output channel.
	chunkBuffer = 64

	// budgetNote ends a turn that hit its tool-round budget.
	budgetNote = "Stopping here: this conversation turn reached its tool call limit."
)

// Turn outcomes, as recorded in metrics.
const (
	OutcomeCompleted        = "completed"
	OutcomeAwaitingApproval = "awaiting_approval"
	OutcomeBudgetExhausted  = "budget_exhausted"
	OutcomeError            = "error"
)

// RuntimeOptions configures a Runtime.
type RuntimeOptions struct {
	// Provider serves completions. Required.
	Provider LLMProvider

	// Model is the model ID sent with every request.
	Model string

	// SystemPrompt supplies the system prompt per request, so a prompt
	// reload takes effect on the next turn. Nil means no system prompt.
	SystemPrompt func() string

	// MaxTokens caps each completion. Zero uses the provider default.
	MaxTokens int

	// Tools the model may call.
	Tools *ToolRegistry

	// Executions maps tool names to the functions that run on approval.
	Executions *Executions

	// ApprovalGated lists tools that wait for a user decision instead of
	// executing when called. Every listed tool must have an execution.
	ApprovalGated []string

	// Transforms rewrite successful tool outputs as they are produced,
	// before they are persisted, streamed, or shown to the model.
	Transforms Transforms

	// Store persists sessions and messages. Required.
	Store sessions.Store

	// MaxToolRounds bounds inference/execution cycles per turn.
	// Zero means DefaultMaxToolRounds.
	MaxToolRounds int

	// ResolveConcurrency bounds parallel approved-call execution.
	ResolveConcurrency int

	// OnFinish runs after the assistant message persists, with the events
	// settled during the turn.
	OnFinish func(final *models.Message, events []*models.ToolEvent)

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Runtime drives conversation turns: it reconciles pending approvals,
// streams inference, executes tool calls in bounded rounds, and persists
// the result.
type Runtime struct {
	opts     RuntimeOptions
	resolver *Resolver
	gated    map[string]struct{}
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes turns per session. Reference counted so idle
// sessions don't accumulate lock entries.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewRuntime validates the options and creates a runtime. Misconfigured
// approval gating is rejected here so it cannot surface mid-conversation.
func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("runtime requires a session store")
	}
	if opts.Tools == nil {
		opts.Tools = NewToolRegistry()
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNopMetrics()
	}

	gated := make(map[string]struct{}, len(opts.ApprovalGated))
	for _, name := range opts.ApprovalGated {
		if !opts.Executions.Has(name) {
			return nil, fmt.Errorf("approval-gated tool %q has no execute function", name)
		}
		gated[name] = struct{}{}
	}

	return &Runtime{
		opts: opts,
		resolver: NewResolver(opts.Executions, ResolverConfig{
			MaxConcurrency: opts.ResolveConcurrency,
			Transforms:     opts.Transforms,
			Logger:         opts.Logger,
		}),
		gated:   gated,
		logger:  opts.Logger.With("component", "runtime"),
		metrics: opts.Metrics,
		locks:   map[string]*sessionLock{},
	}, nil
}

// Registry returns the runtime's tool registry.
func (r *Runtime) Registry() *ToolRegistry {
	return r.opts.Tools
}

// RequiresApproval reports whether a tool waits for a user decision.
func (r *Runtime) RequiresApproval(name string) bool {
	_, ok := r.gated[name]
	return ok
}

// ProcessTurn runs one conversation turn for the given user message and
// returns a stream of chunks. The channel closes when the turn completes;
// failures arrive as error chunks on the channel, not as a second return.
// Turns for the same session serialize; turns for different sessions run
// independently.
func (r *Runtime) ProcessTurn(ctx context.Context, userMsg *models.Message) (<-chan *models.StreamChunk, error) {
	if userMsg == nil || userMsg.SessionID == "" {
		return nil, fmt.Errorf("turn requires a message with a session id")
	}
	out := make(chan *models.StreamChunk, chunkBuffer)
	go func() {
		defer close(out)
		r.runTurn(ctx, out, userMsg)
	}()
	return out, nil
}

// runTurn is the single writer for the turn's output channel. All chunk
// emission happens on this goroutine; resolver and tool workers only
// compute results behind a join.
func (r *Runtime) runTurn(ctx context.Context, out chan<- *models.StreamChunk, userMsg *models.Message) {
	start := time.Now()
	outcome := OutcomeError
	defer func() {
		r.metrics.RecordTurn(outcome, time.Since(start).Seconds())
	}()

	unlock := r.lockSession(userMsg.SessionID)
	defer unlock()

	ctx = WithSessionID(ctx, userMsg.SessionID)
	logger := r.logger.With("session_id", userMsg.SessionID)

	if _, err := r.opts.Store.EnsureSession(ctx, userMsg.SessionID, ""); err != nil {
		r.fail(ctx, out, logger, fmt.Errorf("ensure session: %w", err))
		return
	}
	history, err := r.opts.Store.History(ctx, userMsg.SessionID, 0)
	if err != nil {
		r.fail(ctx, out, logger, fmt.Errorf("load history: %w", err))
		return
	}
	if userMsg.ID == "" {
		userMsg.ID = uuid.NewString()
	}
	if userMsg.CreatedAt.IsZero() {
		userMsg.CreatedAt = time.Now().UTC()
	}
	if err := r.opts.Store.AppendMessage(ctx, userMsg); err != nil {
		r.fail(ctx, out, logger, fmt.Errorf("persist user message: %w", err))
		return
	}

	working := append(history, userMsg.Clone())
	working = SanitizeHistory(working)

	var events []*models.ToolEvent
	emit := func(ev *models.ToolEvent) {
		events = append(events, ev)
		r.metrics.RecordResolution(string(ev.Stage))
		sendChunk(ctx, out, models.ToolEventChunk(ev))
	}

	// Settle pending approvals before any inference this turn, and persist
	// the rewritten messages so a settled call never runs again.
	modified := r.resolver.Resolve(ctx, working, emit)
	for _, idx := range modified {
		if err := r.opts.Store.UpdateMessage(ctx, &working[idx]); err != nil {
			r.fail(ctx, out, logger, fmt.Errorf("persist resolved message: %w", err))
			return
		}
	}

	assistant := models.Message{
		ID:        uuid.NewString(),
		SessionID: userMsg.SessionID,
		Role:      models.RoleAssistant,
		CreatedAt: time.Now().UTC(),
	}
	tools := r.opts.Tools.All()

	for round := 0; ; round++ {
		if ctx.Err() != nil {
			r.fail(ctx, out, logger, ctx.Err())
			return
		}
		if round >= r.opts.MaxToolRounds {
			logger.Warn("turn stopped", "round", round, "error", ErrMaxToolRounds)
			assistant.Parts = append(assistant.Parts, models.TextPart(budgetNote))
			sendChunk(ctx, out, models.TextChunk(budgetNote))
			outcome = OutcomeBudgetExhausted
			break
		}

		req := &CompletionRequest{
			Model:      r.opts.Model,
			System:     r.systemPrompt(),
			Messages:   ProjectMessages(append(working, assistant)),
			Tools:      tools,
			ToolChoice: ToolChoiceAuto,
			MaxTokens:  r.opts.MaxTokens,
		}

		text, calls, err := r.streamCompletion(ctx, out, req)
		if err != nil {
			r.fail(ctx, out, logger, err)
			return
		}
		if text != "" {
			assistant.Parts = append(assistant.Parts, models.TextPart(text))
		}
		if len(calls) == 0 {
			outcome = OutcomeCompleted
			break
		}

		hasGated := r.appendCallParts(ctx, &assistant, calls, emitToolEvent(ctx, out, &events))
		if hasGated {
			outcome = OutcomeAwaitingApproval
			break
		}
	}

	if len(assistant.Parts) == 0 && outcome == OutcomeCompleted {
		logger.Debug("turn produced no assistant message")
		return
	}
	if err := r.opts.Store.AppendMessage(ctx, &assistant); err != nil {
		r.fail(ctx, out, logger, fmt.Errorf("persist assistant message: %w", err))
		outcome = OutcomeError
		return
	}
	sendChunk(ctx, out, models.MessageChunk(&assistant))
	if r.opts.OnFinish != nil {
		r.opts.OnFinish(&assistant, events)
	}
}

func (r *Runtime) systemPrompt() string {
	if r.opts.SystemPrompt == nil {
		return ""
	}
	return r.opts.SystemPrompt()
}

// streamCompletion forwards one completion's text chunks and collects its
// tool calls.
func (r *Runtime) streamCompletion(ctx context.Context, out chan<- *models.StreamChunk, req *CompletionRequest) (string, []models.ToolCall, error) {
	provider := r.opts.Provider
	started := time.Now()

	chunks, err := provider.Complete(ctx, req)
	if err != nil {
		r.metrics.RecordLLMRequest(provider.Name(), req.Model, "error", time.Since(started).Seconds(), 0, 0)
		return "", nil, fmt.Errorf("completion request: %w", err)
	}

	var text strings.Builder
	var calls []models.ToolCall
	var inputTokens, outputTokens int
	for chunk := range chunks {
		if chunk.Error != nil {
			r.metrics.RecordLLMRequest(provider.Name(), req.Model, "error", time.Since(started).Seconds(), 0, 0)
			return "", nil, fmt.Errorf("completion stream: %w", chunk.Error)
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			if !sendChunk(ctx, out, models.TextChunk(chunk.Text)) {
				return "", nil, ctx.Err()
			}
		}
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Done {
			inputTokens, outputTokens = chunk.InputTokens, chunk.OutputTokens
		}
	}

	r.metrics.RecordLLMRequest(provider.Name(), req.Model, "success", time.Since(started).Seconds(), inputTokens, outputTokens)
	return text.String(), calls, nil
}

// appendCallParts records this round's tool calls on the assistant message,
// which accumulates parts across rounds and is persisted once at turn end.
// Approval-gated calls become pending parts awaiting a decision; the rest
// execute now. Reports whether any call is waiting on approval.
func (r *Runtime) appendCallParts(ctx context.Context, assistant *models.Message, calls []models.ToolCall, emit EventSink) bool {
	outcomes := r.executeAutoCalls(ctx, calls)

	hasGated := false
	for _, call := range calls {
		if r.RequiresApproval(call.Name) {
			hasGated = true
			part := models.ToolPart(call.Name, call.ID, call.Input)
			assistant.Parts = append(assistant.Parts, part)
			emit(&models.ToolEvent{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Stage:      models.ToolEventRequested,
				Input:      call.Input,
			})
			continue
		}

		oc := outcomes[call.ID]
		if !oc.isErr {
			oc.content = r.opts.Transforms.ApplyOutput(call.Name, oc.content)
		}
		var part models.Part
		if tool, ok := r.opts.Tools.Get(call.Name); ok && isRemote(tool) {
			part = models.DynamicToolPart(call.Name, call.ID, call.Input)
		} else {
			part = models.ToolPart(call.Name, call.ID, call.Input)
		}

		stage := models.ToolEventSucceeded
		status := "success"
		if oc.isErr {
			part.State = models.PartOutputError
			part.ErrorText = oc.content
			stage = models.ToolEventFailed
			status = "error"
		} else {
			part.State = models.PartOutputAvailable
			part.Output = oc.content
		}
		assistant.Parts = append(assistant.Parts, part)

		r.metrics.RecordToolExecution(call.Name, status, oc.finished.Sub(oc.started).Seconds())
		emit(&models.ToolEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Stage:      stage,
			Input:      call.Input,
			Output:     oc.content,
			Error:      oc.errText(),
			StartedAt:  oc.started,
			FinishedAt: oc.finished,
		})
	}
	return hasGated
}

// toolOutcome is the settled result of one auto-executed call.
type toolOutcome struct {
	content  string
	isErr    bool
	started  time.Time
	finished time.Time
}

func (o toolOutcome) errText() string {
	if !o.isErr {
		return ""
	}
	return o.content
}

// executeAutoCalls runs the non-gated calls concurrently and returns their
// outcomes keyed by call ID. Workers never touch the output channel.
func (r *Runtime) executeAutoCalls(ctx context.Context, calls []models.ToolCall) map[string]toolOutcome {
	outcomes := make(map[string]toolOutcome, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, DefaultResolveConcurrency)

	for _, call := range calls {
		if r.RequiresApproval(call.Name) {
			continue
		}
		wg.Add(1)
		go func(call models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			oc := toolOutcome{started: time.Now()}
			result, err := r.opts.Tools.Execute(ctx, call.Name, call.Input)
			oc.finished = time.Now()
			switch {
			case err != nil:
				oc.content = err.Error()
				oc.isErr = true
			case result.IsError:
				oc.content = result.Content
				oc.isErr = true
			default:
				oc.content = result.Content
			}

			mu.Lock()
			outcomes[call.ID] = oc
			mu.Unlock()
		}(call)
	}
	wg.Wait()
	return outcomes
}

// emitToolEvent builds the sink the tool-round loop shares with metrics
// and the event log.
func emitToolEvent(ctx context.Context, out chan<- *models.StreamChunk, events *[]*models.ToolEvent) EventSink {
	return func(ev *models.ToolEvent) {
		*events = append(*events, ev)
		sendChunk(ctx, out, models.ToolEventChunk(ev))
	}
}

func (r *Runtime) fail(ctx context.Context, out chan<- *models.StreamChunk, logger *slog.Logger, err error) {
	logger.Error("turn failed", "error", err)
	sendChunk(ctx, out, models.ErrorChunk(err.Error()))
}

// lockSession acquires the per-session turn lock and returns its release.
func (r *Runtime) lockSession(sessionID string) func() {
	r.mu.Lock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		r.locks[sessionID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, sessionID)
		}
		r.mu.Unlock()
	}
}
