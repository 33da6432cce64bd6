// Package models contains the core data types shared across the runtime:
// sessions, messages, tool calls and results, attachments, and the
// structures produced by a completed turn.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Session represents one conversation scoped to a (channel, chat) pair.
// Sessions are created lazily on first inbound and never destroyed by
// the engine; durable persistence is the channel adapter's concern.
type Session struct {
	ID          string    `json:"id"`
	ChannelType string    `json:"channel_type"`
	ChatID      string    `json:"chat_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Messages    []Message `json:"messages,omitempty"`
}

// Message is a single entry in a conversation. Messages are append-only
// within a turn.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
}

// ToolCall is a structured request from the LLM to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// FailureKind classifies why a tool execution failed.
type FailureKind string

const (
	FailureValidation    FailureKind = "VALIDATION"
	FailurePolicyDenied  FailureKind = "POLICY_DENIED"
	FailureRateLimited   FailureKind = "RATE_LIMITED"
	FailureTimeout       FailureKind = "TIMEOUT"
	FailureUpstreamError FailureKind = "UPSTREAM_ERROR"
	FailureInternalError FailureKind = "INTERNAL_ERROR"
	FailureDisabled      FailureKind = "DISABLED"
	FailureNotFound      FailureKind = "NOT_FOUND"
)

// ToolResult is the outcome of a tool execution. Success implies Error
// is empty; failure implies FailureKind is set. Data is an opaque side
// channel for attachments, milestone events, and similar artifacts.
type ToolResult struct {
	Success     bool           `json:"success"`
	Output      string         `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	FailureKind FailureKind    `json:"failure_kind,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// OK returns a successful result with the given output.
func OK(output string) *ToolResult {
	return &ToolResult{Success: true, Output: output}
}

// Fail returns a failed result with the given kind and error message.
func Fail(kind FailureKind, msg string) *ToolResult {
	return &ToolResult{Success: false, Error: msg, FailureKind: kind}
}

// WithData attaches a side-channel value to the result and returns it.
func (r *ToolResult) WithData(key string, value any) *ToolResult {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	r.Data[key] = value
	return r
}

// AttachmentType classifies attachment payloads.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "IMAGE"
	AttachmentDocument AttachmentType = "DOCUMENT"
	AttachmentAudio    AttachmentType = "AUDIO"
	AttachmentVideo    AttachmentType = "VIDEO"
)

// Attachment is an immutable file payload produced by a tool
// (send_file, screenshot, voice response).
type Attachment struct {
	Type     AttachmentType `json:"type"`
	Filename string         `json:"filename"`
	MimeType string         `json:"mime_type"`
	Bytes    []byte         `json:"bytes,omitempty"`
}

// Milestone is a structured lifecycle event emitted when a task or goal
// changes state.
type Milestone struct {
	GoalID    string    `json:"goal_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Milestone kinds.
const (
	MilestoneTaskInProgress = "task_in_progress"
	MilestoneTaskCompleted  = "task_completed"
	MilestoneTaskFailed     = "task_failed"
	MilestoneGoalCompleted  = "goal_completed"
	MilestoneTurnTerminated = "turn_terminated"
)

// VoiceResult carries the voice request state out of a turn.
type VoiceResult struct {
	Requested bool   `json:"requested"`
	Text      string `json:"text,omitempty"`
}

// TurnResult is the terminal outcome of a turn as surfaced to the
// channel adapter.
type TurnResult struct {
	FinalText   string       `json:"final_text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Voice       VoiceResult  `json:"voice"`
	Milestones  []Milestone  `json:"milestones,omitempty"`

	// Termination describes why the turn ended.
	Termination Termination `json:"termination"`

	LLMCalls       int `json:"llm_calls"`
	ToolExecutions int `json:"tool_executions"`
}

// Termination identifies the terminal transition of a turn.
type Termination string

const (
	TerminatedComplete Termination = "COMPLETE"
	TerminatedBudget   Termination = "BUDGET"
	TerminatedDeadline Termination = "DEADLINE"
	TerminatedInternal Termination = "INTERNAL_ERROR"
)

// Inbound is a message entering the engine from a channel adapter.
// Either Text or Attachments must be non-empty.
type Inbound struct {
	ChannelType string       `json:"channel_type"`
	ChatID      string       `json:"chat_id"`
	UserID      string       `json:"user_id"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	IsVoice     bool         `json:"is_voice,omitempty"`
}

// Preferences are the per-user settings that influence routing and tone.
type Preferences struct {
	Language  string `json:"language,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	ModelTier string `json:"model_tier,omitempty"`
	TierForce bool   `json:"tier_force,omitempty"`
}

// SkillTransitionRequest asks the engine to switch the active skill at
// the end of the current dispatch.
type SkillTransitionRequest struct {
	Skill  string `json:"skill"`
	Reason string `json:"reason,omitempty"`
}

// Skill describes a named capability bundle loaded from a SKILL.md.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
	Available   bool   `json:"available"`
}
