package models

import "time"

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "ACTIVE"
	GoalCompleted GoalStatus = "COMPLETED"
	GoalAbandoned GoalStatus = "ABANDONED"
)

// TaskStatus is the lifecycle state of a task within a goal.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

// Goal is a long-running objective driven by the autonomous scheduler.
// A goal is COMPLETED only when all non-failed tasks are completed and
// it was explicitly completed.
type Goal struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      GoalStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Tasks       []AutoTask `json:"tasks,omitempty"`
}

// AutoTask is one unit of work under a goal. Task ordering is stable on
// insertion.
type AutoTask struct {
	ID          string     `json:"id"`
	GoalID      string     `json:"goal_id"`
	Position    int        `json:"position"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DiaryEntry is a free-form note recorded while working a goal.
type DiaryEntry struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goal_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
