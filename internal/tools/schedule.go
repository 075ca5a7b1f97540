package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/schedule"
)

// Scheduling tool names.
const (
	ScheduleTaskToolName = "schedule_task"
	ListTasksToolName    = "list_tasks"
	CancelTaskToolName   = "cancel_task"
)

type scheduleTaskInput struct {
	Description string `json:"description" jsonschema:"description=What the task should remind about"`
	At          string `json:"at,omitempty" jsonschema:"description=One-shot time in RFC3339 or 'YYYY-MM-DD HH:MM'"`
	Every       string `json:"every,omitempty" jsonschema:"description=Repeat interval such as 30m or 2h"`
	Cron        string `json:"cron,omitempty" jsonschema:"description=Cron expression such as '0 9 * * MON'"`
	Timezone    string `json:"timezone,omitempty" jsonschema:"description=IANA timezone for at/cron schedules"`
}

// ScheduleTaskTool creates a scheduled task in the current session. When
// the task fires, a reminder message lands in the conversation.
type ScheduleTaskTool struct {
	scheduler *schedule.Scheduler
	schema    json.RawMessage
}

// NewScheduleTaskTool creates the schedule_task tool.
func NewScheduleTaskTool(s *schedule.Scheduler) *ScheduleTaskTool {
	return &ScheduleTaskTool{scheduler: s, schema: reflectSchema(&scheduleTaskInput{})}
}

func (t *ScheduleTaskTool) Name() string { return ScheduleTaskToolName }

func (t *ScheduleTaskTool) Description() string {
	return "Schedule a task for this conversation: a one-shot reminder (at), a repeating interval (every), or a cron expression (cron)."
}

func (t *ScheduleTaskTool) Schema() json.RawMessage { return t.schema }

func (t *ScheduleTaskTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	sessionID := agent.SessionIDFromContext(ctx)
	if sessionID == "" {
		return &agent.ToolResult{Content: "no session to schedule into", IsError: true}, nil
	}

	var in scheduleTaskInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
	}

	spec := schedule.Spec{
		At:       in.At,
		Cron:     in.Cron,
		Timezone: in.Timezone,
	}
	if in.Every != "" {
		every, err := time.ParseDuration(in.Every)
		if err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid interval %q: %v", in.Every, err), IsError: true}, nil
		}
		spec.Every = every
	}

	task, err := t.scheduler.Add(sessionID, in.Description, spec)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Scheduled task %s (%s), next run %s.",
			task.ID, task.Schedule, task.NextRun.Format(time.RFC3339)),
	}, nil
}

type listTasksInput struct{}

// ListTasksTool lists this session's scheduled tasks.
type ListTasksTool struct {
	scheduler *schedule.Scheduler
	schema    json.RawMessage
}

// NewListTasksTool creates the list_tasks tool.
func NewListTasksTool(s *schedule.Scheduler) *ListTasksTool {
	return &ListTasksTool{scheduler: s, schema: reflectSchema(&listTasksInput{})}
}

func (t *ListTasksTool) Name() string { return ListTasksToolName }

func (t *ListTasksTool) Description() string {
	return "List the scheduled tasks for this conversation."
}

func (t *ListTasksTool) Schema() json.RawMessage { return t.schema }

func (t *ListTasksTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	sessionID := agent.SessionIDFromContext(ctx)
	tasks := t.scheduler.List(sessionID)
	if len(tasks) == 0 {
		return &agent.ToolResult{Content: "No scheduled tasks."}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d scheduled task(s):\n", len(tasks))
	for _, task := range tasks {
		fmt.Fprintf(&b, "- %s: %s (%s, %s", task.ID, task.Description, task.Schedule, task.Status)
		if task.Status == schedule.StatusPending && !task.NextRun.IsZero() {
			fmt.Fprintf(&b, ", next %s", task.NextRun.Format(time.RFC3339))
		}
		b.WriteString(")\n")
	}
	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

type cancelTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"description=ID of the task to cancel"`
}

// CancelTaskTool cancels a pending scheduled task.
type CancelTaskTool struct {
	scheduler *schedule.Scheduler
	schema    json.RawMessage
}

// NewCancelTaskTool creates the cancel_task tool.
func NewCancelTaskTool(s *schedule.Scheduler) *CancelTaskTool {
	return &CancelTaskTool{scheduler: s, schema: reflectSchema(&cancelTaskInput{})}
}

func (t *CancelTaskTool) Name() string { return CancelTaskToolName }

func (t *CancelTaskTool) Description() string {
	return "Cancel a scheduled task by ID."
}

func (t *CancelTaskTool) Schema() json.RawMessage { return t.schema }

func (t *CancelTaskTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in cancelTaskInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
	}
	if err := t.scheduler.Cancel(in.TaskID); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Cancelled task %s.", in.TaskID)}, nil
}
