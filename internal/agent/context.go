// Package agent implements the turn engine: the per-turn loop that
// alternates LLM calls and tool executions under a hard budget and
// deadline, plus the tool registry and invocation protocol.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// Control attribute keys on the turn context. Only the engine's
// dispatch goroutine writes these.
const (
	AttrLoopComplete   = "loop.complete"
	AttrVoiceRequested = "voiceRequested"
	AttrVoiceText      = "voiceText"
)

// Budget bounds one turn. All three limits are positive; the deadline
// is computed at turn entry and enforced monotonically.
type Budget struct {
	MaxLLMCalls       int
	MaxToolExecutions int
	Deadline          time.Time
}

// Context is the mutable per-turn state. It is created at turn start,
// owned exclusively by the engine for the turn's duration, and
// discarded at the end. Tools receive it as a scoped handle with
// explicit setters for the defined attributes.
type Context struct {
	Session  *models.Session
	Prefs    models.Preferences
	Snapshot *config.Snapshot
	Budget   Budget

	// Messages is the working transcript for the current turn.
	Messages []models.Message

	mu              sync.Mutex
	attrs           map[string]any
	attachments     []models.Attachment
	milestones      []models.Milestone
	modelTier       string
	activeSkill     string
	skillTransition *models.SkillTransitionRequest
	codeActivity    bool
	llmCalls        int
	toolExecutions  int
}

// NewContext creates the turn context for a session under a snapshot.
func NewContext(sess *models.Session, prefs models.Preferences, snap *config.Snapshot, now time.Time) *Context {
	return &Context{
		Session:  sess,
		Prefs:    prefs,
		Snapshot: snap,
		Budget: Budget{
			MaxLLMCalls:       snap.MaxLLMCalls(),
			MaxToolExecutions: snap.MaxToolExecutions(),
			Deadline:          now.Add(snap.TurnDeadline()),
		},
		attrs: make(map[string]any),
	}
}

// Key identifies this context for per-context services such as plan
// mode.
func (c *Context) Key() string {
	if c.Session != nil {
		return c.Session.ID
	}
	return ""
}

// SetAttr sets a scalar attribute.
func (c *Context) SetAttr(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[key] = value
}

// Attr returns a scalar attribute.
func (c *Context) Attr(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs[key]
	return v, ok
}

// BoolAttr returns a boolean attribute, false when absent.
func (c *Context) BoolAttr(key string) bool {
	v, ok := c.Attr(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// StringAttr returns a string attribute, empty when absent.
func (c *Context) StringAttr(key string) string {
	v, ok := c.Attr(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// LoopComplete reports whether a tool requested turn termination.
func (c *Context) LoopComplete() bool {
	return c.BoolAttr(AttrLoopComplete)
}

// RequestVoice marks the turn for a voice response and completes the
// loop after the current dispatch batch.
func (c *Context) RequestVoice(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[AttrVoiceRequested] = true
	if text != "" {
		c.attrs[AttrVoiceText] = text
	}
	c.attrs[AttrLoopComplete] = true
}

// Voice returns the voice request state for the turn result.
func (c *Context) Voice() models.VoiceResult {
	return models.VoiceResult{
		Requested: c.BoolAttr(AttrVoiceRequested),
		Text:      c.StringAttr(AttrVoiceText),
	}
}

// SetModelTier records an explicit tier override for the rest of the
// turn.
func (c *Context) SetModelTier(tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelTier = tier
}

// ModelTier returns the explicit tier override, if any.
func (c *Context) ModelTier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelTier
}

// ActiveSkill returns the skill currently shaping the system prompt.
func (c *Context) ActiveSkill() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSkill
}

// SetActiveSkill installs a skill after a transition is applied.
func (c *Context) SetActiveSkill(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeSkill = name
	c.skillTransition = nil
}

// RequestSkillTransition records a pending skill transition.
func (c *Context) RequestSkillTransition(req models.SkillTransitionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skillTransition = &req
}

// SkillTransition returns the pending transition, if any.
func (c *Context) SkillTransition() *models.SkillTransitionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skillTransition
}

// MarkCodeActivity flags the turn as code-related; the flag is sticky
// so the tier never downgrades within a turn.
func (c *Context) MarkCodeActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeActivity = true
}

// CodeActivity reports whether code-related tools ran this turn.
func (c *Context) CodeActivity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codeActivity
}

// AddAttachment collects a side-channel attachment for the turn result.
func (c *Context) AddAttachment(a models.Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments = append(c.attachments, a)
}

// Attachments returns the collected attachments in emission order.
func (c *Context) Attachments() []models.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Attachment(nil), c.attachments...)
}

// AddMilestone collects a milestone event for the turn result.
func (c *Context) AddMilestone(m models.Milestone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.milestones = append(c.milestones, m)
}

// Milestones returns the collected milestones in emission order.
func (c *Context) Milestones() []models.Milestone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Milestone(nil), c.milestones...)
}

// NoteLLMCall counts an LLM call against the budget.
func (c *Context) NoteLLMCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmCalls++
	if c.llmCalls > c.Budget.MaxLLMCalls {
		return fmt.Errorf("llm calls exceeded %d", c.Budget.MaxLLMCalls)
	}
	return nil
}

// NoteToolExecution counts a tool dispatch against the budget.
func (c *Context) NoteToolExecution() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolExecutions++
	if c.toolExecutions > c.Budget.MaxToolExecutions {
		return fmt.Errorf("tool executions exceeded %d", c.Budget.MaxToolExecutions)
	}
	return nil
}

// Counters returns the LLM call and tool execution counts.
func (c *Context) Counters() (llmCalls, toolExecutions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.llmCalls, c.toolExecutions
}

// DeadlineExceeded reports whether the turn deadline has passed.
func (c *Context) DeadlineExceeded(now time.Time) bool {
	return now.After(c.Budget.Deadline)
}

// Append adds a message to the turn transcript.
func (c *Context) Append(msg models.Message) {
	c.Messages = append(c.Messages, msg)
}
