package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/autopilot"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

func newTool(t *testing.T) (*Tool, *autopilot.Store) {
	t.Helper()
	store, err := autopilot.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func testContext(t *testing.T) *agent.Context {
	t.Helper()
	cfg := config.Default()
	cfg.Tools.GoalsEnabled = true
	snap := config.NewSnapshot(cfg)
	return agent.NewContext(&models.Session{ID: "s"}, models.Preferences{}, snap, time.Now())
}

func exec(t *testing.T, tool *Tool, args string) *models.ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), testContext(t), json.RawMessage(args))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return res
}

func TestGoalLifecycle(t *testing.T) {
	tool, store := newTool(t)

	res := exec(t, tool, `{"operation":"create_goal","title":"Ship v2","description":"release"}`)
	if !res.Success {
		t.Fatalf("create_goal = %+v", res)
	}
	goals, err := store.ListGoals(context.Background())
	if err != nil || len(goals) != 1 {
		t.Fatalf("goals = %v, %v", goals, err)
	}
	goalID := goals[0].ID

	res = exec(t, tool, fmt.Sprintf(
		`{"operation":"plan_tasks","goal_id":%q,"tasks":[{"title":"write changelog"},{"title":"tag release","description":"v2.0.0"}]}`,
		goalID))
	if !res.Success {
		t.Fatalf("plan_tasks = %+v", res)
	}

	res = exec(t, tool, `{"operation":"list_goals"}`)
	if !strings.Contains(res.Output, "Ship v2") || !strings.Contains(res.Output, "1. [PENDING] write changelog") {
		t.Errorf("list output = %q", res.Output)
	}
}

func TestPlanTasksValidation(t *testing.T) {
	tool, store := newTool(t)
	goal, err := store.CreateGoal(context.Background(), "g", "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args string
		kind models.FailureKind
	}{
		{"missing goal_id", `{"operation":"plan_tasks","tasks":[{"title":"t"}]}`, models.FailureValidation},
		{"empty tasks", fmt.Sprintf(`{"operation":"plan_tasks","goal_id":%q,"tasks":[]}`, goal.ID), models.FailureValidation},
		{"blank title", fmt.Sprintf(`{"operation":"plan_tasks","goal_id":%q,"tasks":[{"title":" "}]}`, goal.ID), models.FailureValidation},
		{"unknown goal", `{"operation":"plan_tasks","goal_id":"missing","tasks":[{"title":"t"}]}`, models.FailureNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := exec(t, tool, tc.args)
			if res.Success || res.FailureKind != tc.kind {
				t.Errorf("result = %+v, want %s", res, tc.kind)
			}
		})
	}
}

func TestTaskCompletionEmitsMilestone(t *testing.T) {
	tool, store := newTool(t)
	goal, _ := store.CreateGoal(context.Background(), "g", "")
	tasks, err := store.AddTasks(context.Background(), goal.ID, []autopilot.TaskInput{{Title: "t"}})
	if err != nil {
		t.Fatal(err)
	}

	res := exec(t, tool, fmt.Sprintf(
		`{"operation":"update_task_status","goal_id":%q,"task_id":%q,"status":"COMPLETED"}`, goal.ID, tasks[0].ID))
	if !res.Success {
		t.Fatalf("update = %+v", res)
	}
	ms, ok := res.Data[agent.DataMilestones].([]models.Milestone)
	if !ok || len(ms) != 1 {
		t.Fatalf("milestones = %v", res.Data[agent.DataMilestones])
	}
	if ms[0].Kind != models.MilestoneTaskCompleted || ms[0].TaskID != tasks[0].ID {
		t.Errorf("milestone = %+v", ms[0])
	}

	got, _ := store.GetGoal(context.Background(), goal.ID)
	if got.Tasks[0].Status != models.TaskCompleted {
		t.Errorf("task status = %s", got.Tasks[0].Status)
	}
}

func TestUpdateTaskStatusValidation(t *testing.T) {
	tool, _ := newTool(t)

	res := exec(t, tool, `{"operation":"update_task_status","task_id":"x","status":"DONE"}`)
	if res.Success || res.FailureKind != models.FailureValidation {
		t.Errorf("bad status: %+v", res)
	}
	res = exec(t, tool, `{"operation":"update_task_status","task_id":"missing","status":"COMPLETED"}`)
	if res.Success || res.FailureKind != models.FailureNotFound {
		t.Errorf("missing task: %+v", res)
	}
}

func TestCompleteGoalEmitsMilestone(t *testing.T) {
	tool, store := newTool(t)
	goal, _ := store.CreateGoal(context.Background(), "g", "")

	res := exec(t, tool, fmt.Sprintf(`{"operation":"complete_goal","goal_id":%q}`, goal.ID))
	if !res.Success {
		t.Fatalf("complete_goal = %+v", res)
	}
	ms, ok := res.Data[agent.DataMilestones].([]models.Milestone)
	if !ok || len(ms) != 1 || ms[0].Kind != models.MilestoneGoalCompleted {
		t.Fatalf("milestones = %v", res.Data[agent.DataMilestones])
	}

	got, _ := store.GetGoal(context.Background(), goal.ID)
	if got.Status != models.GoalCompleted {
		t.Errorf("goal status = %s", got.Status)
	}
}

func TestWriteDiary(t *testing.T) {
	tool, store := newTool(t)
	goal, _ := store.CreateGoal(context.Background(), "g", "")

	res := exec(t, tool, fmt.Sprintf(`{"operation":"write_diary","goal_id":%q,"content":"made progress"}`, goal.ID))
	if !res.Success {
		t.Fatalf("write_diary = %+v", res)
	}
	entries, err := store.ListDiary(context.Background(), goal.ID)
	if err != nil || len(entries) != 1 || entries[0].Content != "made progress" {
		t.Errorf("entries = %v, %v", entries, err)
	}

	res = exec(t, tool, `{"operation":"write_diary","content":" "}`)
	if res.Success || res.FailureKind != models.FailureValidation {
		t.Errorf("blank content: %+v", res)
	}
}

func TestListGoalsEmpty(t *testing.T) {
	tool, _ := newTool(t)
	res := exec(t, tool, `{"operation":"list_goals"}`)
	if !res.Success || res.Output != "No goals." {
		t.Errorf("result = %+v", res)
	}
}
