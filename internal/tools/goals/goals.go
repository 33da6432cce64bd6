// Package goals implements the goal_management tool over the
// autopilot store, emitting milestone events on completions.
package goals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/autopilot"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

type params struct {
	Operation   string               `json:"operation"`
	GoalID      string               `json:"goal_id,omitempty"`
	TaskID      string               `json:"task_id,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Status      string               `json:"status,omitempty"`
	Tasks       []autopilot.TaskInput `json:"tasks,omitempty"`
	Content     string               `json:"content,omitempty"`
}

// Tool is the goal management executor.
type Tool struct {
	store *autopilot.Store
	now   func() time.Time
}

// New creates the tool over a goal store.
func New(store *autopilot.Store) *Tool {
	return &Tool{store: store, now: time.Now}
}

func (t *Tool) Name() string { return "goal_management" }

func (t *Tool) Description() string {
	return "Create and track long-running goals: plan tasks, update their status, complete goals, and keep a diary."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {
				"type": "string",
				"enum": ["create_goal", "list_goals", "plan_tasks", "update_task_status", "complete_goal", "write_diary"]
			},
			"goal_id": {"type": "string"},
			"task_id": {"type": "string"},
			"title": {"type": "string"},
			"description": {"type": "string"},
			"status": {"type": "string", "enum": ["PENDING", "IN_PROGRESS", "COMPLETED", "FAILED"]},
			"tasks": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"title": {"type": "string"},
						"description": {"type": "string"}
					},
					"required": ["title"]
				}
			},
			"content": {"type": "string"}
		},
		"required": ["operation"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsGoalsEnabled() }

func (t *Tool) Execute(ctx context.Context, _ *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}

	switch p.Operation {
	case "create_goal":
		return t.createGoal(ctx, p)
	case "list_goals":
		return t.listGoals(ctx)
	case "plan_tasks":
		return t.planTasks(ctx, p)
	case "update_task_status":
		return t.updateTaskStatus(ctx, p)
	case "complete_goal":
		return t.completeGoal(ctx, p)
	case "write_diary":
		return t.writeDiary(ctx, p)
	default:
		return models.Fail(models.FailureValidation, fmt.Sprintf("unknown operation %q", p.Operation)), nil
	}
}

func (t *Tool) createGoal(ctx context.Context, p params) (*models.ToolResult, error) {
	if strings.TrimSpace(p.Title) == "" {
		return models.Fail(models.FailureValidation, "title is required"), nil
	}
	goal, err := t.store.CreateGoal(ctx, p.Title, p.Description)
	if err != nil {
		return failure(err), nil
	}
	return models.OK(fmt.Sprintf("Created goal %s: %s", goal.ID, goal.Title)), nil
}

func (t *Tool) listGoals(ctx context.Context) (*models.ToolResult, error) {
	goals, err := t.store.ListGoals(ctx)
	if err != nil {
		return failure(err), nil
	}
	if len(goals) == 0 {
		return models.OK("No goals."), nil
	}
	var b strings.Builder
	for _, g := range goals {
		fmt.Fprintf(&b, "%s [%s] %s\n", g.ID, g.Status, g.Title)
		for _, task := range g.Tasks {
			fmt.Fprintf(&b, "  %d. [%s] %s (%s)\n", task.Position+1, task.Status, task.Title, task.ID)
		}
	}
	return models.OK(strings.TrimRight(b.String(), "\n")), nil
}

func (t *Tool) planTasks(ctx context.Context, p params) (*models.ToolResult, error) {
	if p.GoalID == "" {
		return models.Fail(models.FailureValidation, "goal_id is required"), nil
	}
	if len(p.Tasks) == 0 {
		return models.Fail(models.FailureValidation, "tasks must be a non-empty array"), nil
	}
	for i, task := range p.Tasks {
		if strings.TrimSpace(task.Title) == "" {
			return models.Fail(models.FailureValidation, fmt.Sprintf("tasks[%d] is missing a title", i)), nil
		}
	}

	added, err := t.store.AddTasks(ctx, p.GoalID, p.Tasks)
	if err != nil {
		if errors.Is(err, autopilot.ErrNotFound) {
			return models.Fail(models.FailureNotFound, err.Error()), nil
		}
		// Partial failure: report what failed, keeping what landed.
		return models.Fail(models.FailureUpstreamError,
			fmt.Sprintf("planned %d of %d tasks: %v", len(added), len(p.Tasks), err)), nil
	}
	return models.OK(fmt.Sprintf("Planned %d tasks for goal %s", len(added), p.GoalID)), nil
}

func (t *Tool) updateTaskStatus(ctx context.Context, p params) (*models.ToolResult, error) {
	if p.TaskID == "" || p.Status == "" {
		return models.Fail(models.FailureValidation, "task_id and status are required"), nil
	}
	status := models.TaskStatus(p.Status)
	switch status {
	case models.TaskPending, models.TaskInProgress, models.TaskCompleted, models.TaskFailed:
	default:
		return models.Fail(models.FailureValidation, fmt.Sprintf("invalid status %q", p.Status)), nil
	}

	if err := t.store.UpdateTaskStatus(ctx, p.TaskID, status); err != nil {
		return failure(err), nil
	}

	result := models.OK(fmt.Sprintf("Task %s is now %s", p.TaskID, status))
	if status == models.TaskCompleted {
		result = result.WithData(agent.DataMilestones, []models.Milestone{{
			GoalID:    p.GoalID,
			TaskID:    p.TaskID,
			Kind:      models.MilestoneTaskCompleted,
			CreatedAt: t.now(),
		}})
	}
	return result, nil
}

func (t *Tool) completeGoal(ctx context.Context, p params) (*models.ToolResult, error) {
	if p.GoalID == "" {
		return models.Fail(models.FailureValidation, "goal_id is required"), nil
	}
	if err := t.store.UpdateGoalStatus(ctx, p.GoalID, models.GoalCompleted); err != nil {
		return failure(err), nil
	}
	result := models.OK(fmt.Sprintf("Goal %s completed", p.GoalID))
	return result.WithData(agent.DataMilestones, []models.Milestone{{
		GoalID:    p.GoalID,
		Kind:      models.MilestoneGoalCompleted,
		CreatedAt: t.now(),
	}}), nil
}

func (t *Tool) writeDiary(ctx context.Context, p params) (*models.ToolResult, error) {
	if strings.TrimSpace(p.Content) == "" {
		return models.Fail(models.FailureValidation, "content is required"), nil
	}
	entry, err := t.store.WriteDiary(ctx, p.GoalID, p.Content)
	if err != nil {
		return failure(err), nil
	}
	return models.OK(fmt.Sprintf("Diary entry %s recorded", entry.ID)), nil
}

func failure(err error) *models.ToolResult {
	if errors.Is(err, autopilot.ErrNotFound) {
		return models.Fail(models.FailureNotFound, err.Error())
	}
	return models.Fail(models.FailureInternalError, err.Error())
}
