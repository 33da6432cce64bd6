// Package autopilot implements the autonomous goal scheduler: a
// SQLite-backed goal/task/diary store and a ticker that works tasks
// through the turn engine.
package autopilot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tessel-ai/tessel/pkg/models"
)

// ErrNotFound is returned when a goal or task does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS goals (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS auto_tasks (
	id          TEXT PRIMARY KEY,
	goal_id     TEXT NOT NULL REFERENCES goals(id),
	position    INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS diary_entries (
	id         TEXT PRIMARY KEY,
	goal_id    TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auto_tasks_goal ON auto_tasks(goal_id, position);
`

// Store persists goals, tasks, and diary entries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNow injects a clock for tests.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// OpenStore opens (creating if needed) the goals database at path.
func OpenStore(path string, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open goals db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate goals db: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateGoal inserts a new ACTIVE goal.
func (s *Store) CreateGoal(ctx context.Context, title, description string) (*models.Goal, error) {
	now := s.now()
	goal := &models.Goal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      models.GoalActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (id, title, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Title, goal.Description, string(goal.Status), goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return goal, nil
}

// GetGoal returns a goal with its tasks in position order.
func (s *Store) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, created_at, updated_at FROM goals WHERE id = ?`, id)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read goal: %w", err)
	}
	goal.Tasks, err = s.listTasks(ctx, goal.ID)
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// ListGoals returns all goals oldest first, with tasks attached.
func (s *Store) ListGoals(ctx context.Context) ([]*models.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, status, created_at, updated_at FROM goals ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, goal := range goals {
		if goal.Tasks, err = s.listTasks(ctx, goal.ID); err != nil {
			return nil, err
		}
	}
	return goals, nil
}

// UpdateGoalStatus transitions a goal.
func (s *Store) UpdateGoalStatus(ctx context.Context, id string, status models.GoalStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE goals SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("update goal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return nil
}

// TaskInput describes one task to plan.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// AddTasks appends tasks to a goal with stable positions after the
// existing ones.
func (s *Store) AddTasks(ctx context.Context, goalID string, inputs []TaskInput) ([]models.AutoTask, error) {
	if _, err := s.GetGoal(ctx, goalID); err != nil {
		return nil, err
	}

	var next int
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM auto_tasks WHERE goal_id = ?`, goalID)
	if err := row.Scan(&next); err != nil {
		return nil, fmt.Errorf("next task position: %w", err)
	}

	now := s.now()
	tasks := make([]models.AutoTask, 0, len(inputs))
	for i, in := range inputs {
		task := models.AutoTask{
			ID:          uuid.NewString(),
			GoalID:      goalID,
			Position:    next + i,
			Title:       in.Title,
			Description: in.Description,
			Status:      models.TaskPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO auto_tasks (id, goal_id, position, title, description, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.GoalID, task.Position, task.Title, task.Description,
			string(task.Status), task.CreatedAt, task.UpdatedAt)
		if err != nil {
			return tasks, fmt.Errorf("insert task %q: %w", in.Title, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// UpdateTaskStatus transitions one task.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auto_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now(), taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// NextWorkable returns the oldest ACTIVE goal with a PENDING or
// IN_PROGRESS task, and that task. Nil without error when nothing is
// workable.
func (s *Store) NextWorkable(ctx context.Context) (*models.Goal, *models.AutoTask, error) {
	goals, err := s.ListGoals(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, goal := range goals {
		if goal.Status != models.GoalActive {
			continue
		}
		for i := range goal.Tasks {
			t := &goal.Tasks[i]
			if t.Status == models.TaskPending || t.Status == models.TaskInProgress {
				return goal, t, nil
			}
		}
	}
	return nil, nil, nil
}

// WriteDiary records a diary entry, optionally tied to a goal.
func (s *Store) WriteDiary(ctx context.Context, goalID, content string) (*models.DiaryEntry, error) {
	entry := &models.DiaryEntry{
		ID:        uuid.NewString(),
		GoalID:    goalID,
		Content:   content,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO diary_entries (id, goal_id, content, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.GoalID, entry.Content, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("write diary: %w", err)
	}
	return entry, nil
}

// ListDiary returns diary entries for a goal, oldest first.
func (s *Store) ListDiary(ctx context.Context, goalID string) ([]models.DiaryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal_id, content, created_at FROM diary_entries WHERE goal_id = ? ORDER BY created_at ASC`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list diary: %w", err)
	}
	defer rows.Close()

	var entries []models.DiaryEntry
	for rows.Next() {
		var e models.DiaryEntry
		if err := rows.Scan(&e.ID, &e.GoalID, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan diary entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) listTasks(ctx context.Context, goalID string) ([]models.AutoTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal_id, position, title, description, status, created_at, updated_at
		 FROM auto_tasks WHERE goal_id = ? ORDER BY position ASC`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.AutoTask
	for rows.Next() {
		var t models.AutoTask
		var status string
		err := rows.Scan(&t.ID, &t.GoalID, &t.Position, &t.Title, &t.Description,
			&status, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = models.TaskStatus(status)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*models.Goal, error) {
	var g models.Goal
	var status string
	err := row.Scan(&g.ID, &g.Title, &g.Description, &status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.Status = models.GoalStatus(status)
	return &g, nil
}
