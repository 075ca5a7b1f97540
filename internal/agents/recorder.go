package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/concierge/internal/schedule"
	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/pkg/models"
)

// TaskRecorder turns fired scheduled tasks into conversation history. It
// appends a synthetic user message to the task's session without running
// inference; the next real turn picks it up as context.
type TaskRecorder struct {
	store  sessions.Store
	logger *slog.Logger
}

// NewTaskRecorder creates a recorder over the session store.
func NewTaskRecorder(store sessions.Store, logger *slog.Logger) (*TaskRecorder, error) {
	if store == nil {
		return nil, errors.New("task recorder requires a session store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskRecorder{
		store:  store,
		logger: logger.With("component", "task_recorder"),
	}, nil
}

// Run implements schedule.Runner.
func (r *TaskRecorder) Run(ctx context.Context, task *schedule.Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: task.SessionID,
		Role:      models.RoleUser,
		Parts: []models.Part{
			models.TextPart(fmt.Sprintf("Running scheduled task: %s", task.Description)),
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("record task %s: %w", task.ID, err)
	}

	r.logger.Info("scheduled task recorded",
		"task", task.ID,
		"session", task.SessionID)
	return nil
}
