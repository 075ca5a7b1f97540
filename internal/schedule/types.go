// Package schedule runs user-created tasks against agent sessions: one-shot
// timestamps, fixed intervals, and cron expressions.
package schedule

import (
	"context"
	"time"
)

// TaskStatus tracks a task through its lifetime.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
	StatusFailed    TaskStatus = "failed"
)

// Task is one scheduled unit of work tied to a session.
type Task struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Description string     `json:"description"`
	Schedule    Schedule   `json:"schedule"`
	Status      TaskStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	NextRun   time.Time `json:"next_run,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

// Clone returns a copy safe to hand to callers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// Runner receives tasks when they fire.
type Runner interface {
	Run(ctx context.Context, task *Task) error
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func(ctx context.Context, task *Task) error

func (f RunnerFunc) Run(ctx context.Context, task *Task) error {
	return f(ctx, task)
}
