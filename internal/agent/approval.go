package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

// DefaultResolveConcurrency bounds how many approved calls execute at once.
const DefaultResolveConcurrency = 5

// ResolverConfig configures approval resolution.
type ResolverConfig struct {
	// MaxConcurrency bounds parallel execution of approved calls.
	MaxConcurrency int

	// Transforms rewrite successful outputs as they are produced.
	Transforms Transforms

	// Logger for execution failures and panics.
	Logger *slog.Logger
}

// Resolver reconciles user decisions on approval-gated tool calls.
//
// A gated call is recorded as a tool part whose output holds a decision
// sentinel. Resolve finds those parts, executes the approved ones through
// the execution mapping, replaces each sentinel with the real result (or a
// denial), and emits one event per resolved part. Only tools present in
// the execution mapping are subject to reconciliation; a sentinel-shaped
// output on any other tool is ordinary content. Parts that already carry
// real output are never touched, so a call executes at most once no matter
// how often the history is replayed.
type Resolver struct {
	execs      *Executions
	transforms Transforms
	sem        chan struct{}
	logger     *slog.Logger
}

// NewResolver creates a resolver over the given execution mapping.
func NewResolver(execs *Executions, cfg ResolverConfig) *Resolver {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultResolveConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		execs:      execs,
		transforms: cfg.Transforms,
		sem:        make(chan struct{}, cfg.MaxConcurrency),
		logger:     cfg.Logger.With("component", "resolver"),
	}
}

// decision is one sentinel-bearing part scheduled for resolution.
type decision struct {
	msgIdx, partIdx int
	approved        bool
	callID          string
	toolName        string
	input           json.RawMessage
	output          string
	errText         string
	startedAt       time.Time
	finishedAt      time.Time
}

// Resolve walks the history in order and settles every pending decision.
// Approved calls run concurrently, bounded by the resolver's semaphore; all
// executions join before any part is rewritten. Events are emitted in part
// order, after rewriting and before Resolve returns, so a consumer sees
// every resolution ahead of the inference stream that follows.
//
// Parts are rewritten in place: only the output field changes, and the
// part stays in its completed state. Dynamic tool parts, parts without a
// decision sentinel, and parts for tools outside the execution mapping
// are skipped. The returned indexes identify the messages that were
// rewritten, so callers can persist them.
func (r *Resolver) Resolve(ctx context.Context, msgs []models.Message, emit EventSink) []int {
	var pending []decision
	for i := range msgs {
		for j := range msgs[i].Parts {
			part := &msgs[i].Parts[j]
			if !part.IsTool() || part.Dynamic {
				continue
			}
			approved, ok := part.Decision()
			if !ok {
				continue
			}
			// Tools outside the execution mapping are not gated, so a
			// sentinel there is a real output and stays as it is.
			if !r.execs.Has(part.Tool()) {
				continue
			}
			pending = append(pending, decision{
				msgIdx:   i,
				partIdx:  j,
				approved: approved,
				callID:   part.ToolCallID,
				toolName: part.Tool(),
				input:    part.Input,
			})
		}
	}
	if len(pending) == 0 {
		return nil
	}

	// Every execute function sees the same conversation snapshot.
	projected := ProjectMessages(msgs)

	var wg sync.WaitGroup
	for i := range pending {
		d := &pending[i]
		if !d.approved {
			d.output = DeniedResult
			continue
		}
		wg.Add(1)
		go func(d *decision) {
			defer wg.Done()
			r.sem <- struct{}{}
			defer func() { <-r.sem }()

			d.startedAt = time.Now()
			d.output, d.errText = r.executeApproved(ctx, d, projected)
			d.finishedAt = time.Now()
		}(d)
	}
	wg.Wait()

	var modified []int
	for i := range pending {
		d := &pending[i]
		part := &msgs[d.msgIdx].Parts[d.partIdx]
		part.Output = d.output
		part.State = models.PartOutputAvailable
		if len(modified) == 0 || modified[len(modified)-1] != d.msgIdx {
			modified = append(modified, d.msgIdx)
		}

		stage := models.ToolEventSucceeded
		switch {
		case !d.approved:
			stage = models.ToolEventDenied
		case d.errText != "":
			stage = models.ToolEventFailed
		}
		if emit != nil {
			emit(&models.ToolEvent{
				ToolCallID: d.callID,
				ToolName:   d.toolName,
				Stage:      stage,
				Input:      d.input,
				Output:     d.output,
				Error:      d.errText,
				StartedAt:  d.startedAt,
				FinishedAt: d.finishedAt,
			})
		}
	}
	return modified
}

// executeApproved runs one approved call. Failures never propagate as Go
// errors: a missing execute function, a returned error, and a panic all
// collapse into an error-string result so the conversation keeps a normal
// shape.
func (r *Resolver) executeApproved(ctx context.Context, d *decision, projected []CompletionMessage) (out, errText string) {
	fn, ok := r.execs.Get(d.toolName)
	if !ok {
		r.logger.Warn("approved call has no execute function", "tool", d.toolName, "tool_call_id", d.callID)
		return NoExecutorResult, "no execute function found on tool"
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("execute function panicked",
				"tool", d.toolName,
				"tool_call_id", d.callID,
				"panic", rec,
				"stack", string(debug.Stack()))
			errText = fmt.Sprintf("panic: %v", rec)
			out = "Error: " + errText
		}
	}()

	result, err := fn(ctx, d.input, ToolCallContext{ToolCallID: d.callID, Messages: projected})
	if err != nil {
		r.logger.Warn("execute function failed", "tool", d.toolName, "tool_call_id", d.callID, "error", err)
		return "Error: " + err.Error(), err.Error()
	}
	return r.transforms.ApplyOutput(d.toolName, result), ""
}
