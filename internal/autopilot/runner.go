package autopilot

import (
	"context"
	"fmt"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/session"
	"github.com/tessel-ai/tessel/pkg/models"
)

// autoChannel is the synthetic channel scheduled turns run under; one
// session per goal keeps their transcripts separate.
const autoChannel = "auto"

// EngineRunner runs scheduled tasks through the turn engine with a
// synthesized user message and a budget bounded by the task time
// limit.
type EngineRunner struct {
	engine   *agent.Engine
	sessions *session.Store
	manager  *config.Manager
	cfg      config.AutoConfig
	now      func() time.Time
}

// NewEngineRunner wires the turn engine into the scheduler.
func NewEngineRunner(engine *agent.Engine, sessions *session.Store, manager *config.Manager, cfg config.AutoConfig) *EngineRunner {
	return &EngineRunner{
		engine:   engine,
		sessions: sessions,
		manager:  manager,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunTask executes one task as a turn on the goal's session.
func (r *EngineRunner) RunTask(ctx context.Context, goal *models.Goal, task *models.AutoTask) (*models.TurnResult, error) {
	unlock := r.sessions.LockTurn(autoChannel, goal.ID)
	defer unlock()

	sess := r.sessions.GetOrCreate(autoChannel, goal.ID)
	snap := r.manager.Snapshot()

	prefs := models.Preferences{ModelTier: r.cfg.ModelTier}
	tc := agent.NewContext(sess, prefs, snap, r.now())
	// The task time limit bounds the turn, not the configured deadline.
	tc.Budget.Deadline = r.now().Add(time.Duration(r.cfg.TaskTimeLimitMinutes) * time.Minute)

	return r.engine.RunTurn(ctx, tc, models.Inbound{
		ChannelType: autoChannel,
		ChatID:      goal.ID,
		Text:        taskMessage(goal, task),
	})
}

// taskMessage synthesizes the user message describing the next task.
func taskMessage(goal *models.Goal, task *models.AutoTask) string {
	msg := fmt.Sprintf(
		"You are working autonomously on the goal %q", goal.Title)
	if goal.Description != "" {
		msg += fmt.Sprintf(" (%s)", goal.Description)
	}
	msg += fmt.Sprintf(".\nCurrent task: %q", task.Title)
	if task.Description != "" {
		msg += fmt.Sprintf(" (%s)", task.Description)
	}
	msg += fmt.Sprintf(".\nWork the task to completion, then call goal_management update_task_status with task_id %q and status COMPLETED. Record anything notable with write_diary.", task.ID)
	return msg
}
