package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler owns the task set and fires due tasks into a Runner on a
// ticker loop.
type Scheduler struct {
	logger       *slog.Logger
	runner       Runner
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	tasks   map[string]*Task
	started bool
	wg      sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunner sets the runner invoked when a task fires.
func WithRunner(runner Runner) Option {
	return func(s *Scheduler) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the poll interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:       slog.Default().With("component", "schedule"),
		now:          time.Now,
		tickInterval: time.Second,
		tasks:        make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRunner swaps the runner after construction. Used when the runner
// needs the session store that is wired up later in startup.
func (s *Scheduler) SetRunner(runner Runner) {
	if runner == nil {
		return
	}
	s.mu.Lock()
	s.runner = runner
	s.mu.Unlock()
}

// Add creates a task from a schedule spec and returns it.
func (s *Scheduler) Add(sessionID, description string, spec Spec) (*Task, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session ID required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, errors.New("description required")
	}

	sched, err := NewSchedule(spec)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, ok, err := sched.Next(now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("schedule has no future run")
	}

	task := &Task{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Description: strings.TrimSpace(description),
		Schedule:    sched,
		Status:      StatusPending,
		CreatedAt:   now,
		NextRun:     next,
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	s.logger.Info("task scheduled",
		"task", task.ID,
		"session", sessionID,
		"schedule", sched.String(),
		"next_run", next)
	return task.Clone(), nil
}

// Get returns a task by ID.
func (s *Scheduler) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	return task.Clone(), ok
}

// List returns tasks sorted by creation time, oldest first. An empty
// sessionID lists every task.
func (s *Scheduler) List(sessionID string) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if sessionID != "" && task.SessionID != sessionID {
			continue
		}
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Cancel marks a pending task cancelled.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	if task.Status != StatusPending {
		return fmt.Errorf("task %q is %s", id, task.Status)
	}
	task.Status = StatusCancelled
	task.NextRun = time.Time{}
	return nil
}

// Start runs the ticker loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop waits for the loop to exit, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce fires due tasks immediately and reports how many ran.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	return s.runDue(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*Task
	for _, task := range s.tasks {
		if task.Status != StatusPending || task.NextRun.IsZero() || now.Before(task.NextRun) {
			continue
		}
		due = append(due, task)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	runner := s.runner
	s.mu.Unlock()

	count := 0
	for _, task := range due {
		var err error
		if runner == nil {
			err = errors.New("no runner configured")
		} else {
			err = runner.Run(ctx, task.Clone())
		}
		if err != nil {
			s.logger.Warn("task run failed", "task", task.ID, "error", err)
		}

		next, ok, nextErr := task.Schedule.Next(now)

		s.mu.Lock()
		task.LastRun = now
		task.Runs++
		if err != nil {
			task.LastError = err.Error()
		} else {
			task.LastError = ""
		}
		switch {
		case nextErr != nil:
			task.LastError = nextErr.Error()
			task.NextRun = time.Time{}
			task.Status = StatusFailed
		case ok && task.Schedule.Recurring():
			task.NextRun = next
		default:
			task.NextRun = time.Time{}
			if err != nil {
				task.Status = StatusFailed
			} else {
				task.Status = StatusCompleted
			}
		}
		s.mu.Unlock()
		count++
	}
	return count
}
