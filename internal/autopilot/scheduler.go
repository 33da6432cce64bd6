package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// TaskRunner executes one scheduled task as a turn. The returned
// result carries the milestones the scheduler applies to the task.
type TaskRunner interface {
	RunTask(ctx context.Context, goal *models.Goal, task *models.AutoTask) (*models.TurnResult, error)
}

// MilestoneSink receives milestone notifications when enabled.
type MilestoneSink func(models.Milestone)

// Scheduler drives goals: a one-second heartbeat picks workable tasks
// and hands them to the runner, capped at maxGoals concurrent goals.
type Scheduler struct {
	store  *Store
	runner TaskRunner
	cfg    config.AutoConfig
	notify MilestoneSink
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]bool // goal id -> being worked
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithMilestoneSink sets the notification sink.
func WithMilestoneSink(sink MilestoneSink) SchedulerOption {
	return func(s *Scheduler) { s.notify = sink }
}

// NewScheduler creates a scheduler over a store and runner.
func NewScheduler(store *Store, runner TaskRunner, cfg config.AutoConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		runner:   runner,
		cfg:      cfg,
		logger:   slog.Default().With("component", "autopilot"),
		now:      time.Now,
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context is canceled. The heartbeat is fixed at
// one second; actual work is gated by autoStart, goal availability,
// and the concurrency cap.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling pass.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.cfg.Enabled || !s.cfg.AutoStart {
		return
	}

	goal, task, err := s.pickTask(ctx)
	if err != nil {
		s.logger.Warn("scheduling pass failed", "error", err)
		return
	}
	if goal == nil {
		return
	}

	go func() {
		defer s.release(goal.ID)
		s.workTask(ctx, goal, task)
	}()
}

// pickTask claims the next workable goal under the concurrency cap.
func (s *Scheduler) pickTask(ctx context.Context) (*models.Goal, *models.AutoTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inflight) >= s.cfg.MaxGoals {
		return nil, nil, nil
	}

	goals, err := s.store.ListGoals(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, goal := range goals {
		if goal.Status != models.GoalActive || s.inflight[goal.ID] {
			continue
		}
		for i := range goal.Tasks {
			t := &goal.Tasks[i]
			if t.Status == models.TaskPending || t.Status == models.TaskInProgress {
				s.inflight[goal.ID] = true
				return goal, t, nil
			}
		}
	}
	return nil, nil, nil
}

func (s *Scheduler) release(goalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, goalID)
}

// workTask runs one task through the turn engine and applies the
// resulting milestones.
func (s *Scheduler) workTask(ctx context.Context, goal *models.Goal, task *models.AutoTask) {
	if err := s.store.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress); err != nil {
		s.logger.Warn("task claim failed", "task", task.ID, "error", err)
		return
	}
	s.emit(models.Milestone{
		GoalID: goal.ID, TaskID: task.ID,
		Kind: models.MilestoneTaskInProgress, Detail: task.Title,
		CreatedAt: s.now(),
	})

	taskCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TaskTimeLimitMinutes)*time.Minute)
	defer cancel()

	result, err := s.runner.RunTask(taskCtx, goal, task)
	if err != nil {
		s.failTask(ctx, goal, task, fmt.Sprintf("turn error: %v", err))
		return
	}

	switch result.Termination {
	case models.TerminatedBudget, models.TerminatedDeadline, models.TerminatedInternal:
		s.failTask(ctx, goal, task, fmt.Sprintf("turn terminated: %s", result.Termination))
		return
	}

	s.applyMilestones(ctx, goal, task, result.Milestones)
}

// failTask marks the task FAILED with the reason as a diary entry;
// the goal remains ACTIVE.
func (s *Scheduler) failTask(ctx context.Context, goal *models.Goal, task *models.AutoTask, reason string) {
	if err := s.store.UpdateTaskStatus(ctx, task.ID, models.TaskFailed); err != nil {
		s.logger.Warn("task fail mark failed", "task", task.ID, "error", err)
	}
	if _, err := s.store.WriteDiary(ctx, goal.ID, fmt.Sprintf("Task %q failed: %s", task.Title, reason)); err != nil {
		s.logger.Warn("diary write failed", "goal", goal.ID, "error", err)
	}
	s.emit(models.Milestone{
		GoalID: goal.ID, TaskID: task.ID,
		Kind: models.MilestoneTaskFailed, Detail: reason,
		CreatedAt: s.now(),
	})
}

// applyMilestones folds the turn's milestone events into task and goal
// state.
func (s *Scheduler) applyMilestones(ctx context.Context, goal *models.Goal, task *models.AutoTask, milestones []models.Milestone) {
	completed := false
	for _, m := range milestones {
		switch m.Kind {
		case models.MilestoneTaskCompleted:
			id := m.TaskID
			if id == "" {
				id = task.ID
			}
			if err := s.store.UpdateTaskStatus(ctx, id, models.TaskCompleted); err != nil {
				s.logger.Warn("task completion mark failed", "task", id, "error", err)
			}
			if id == task.ID {
				completed = true
			}
		case models.MilestoneGoalCompleted:
			if err := s.store.UpdateGoalStatus(ctx, goal.ID, models.GoalCompleted); err != nil {
				s.logger.Warn("goal completion mark failed", "goal", goal.ID, "error", err)
			}
		}
		s.emit(m)
	}
	if !completed {
		// The turn ended cleanly without declaring the task done; leave
		// it IN_PROGRESS for the next tick to resume.
		s.logger.Debug("task not declared complete", "task", task.ID)
	}
}

func (s *Scheduler) emit(m models.Milestone) {
	if s.cfg.NotifyMilestones && s.notify != nil {
		s.notify(m)
	}
}
