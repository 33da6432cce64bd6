package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tessel-ai/tessel/internal/agent/routing"
	"github.com/tessel-ai/tessel/internal/guard"
	"github.com/tessel-ai/tessel/internal/llm"
	"github.com/tessel-ai/tessel/pkg/models"
)

// ClientFactory builds an LLM client for a resolved model. Tests swap
// in a fake; the default constructs an OpenAI-compatible client per
// provider endpoint.
type ClientFactory func(res *routing.Resolution) llm.Client

// Recaller produces the memory recall block injected into the system
// prompt, already cut to the prompt token budgets.
type Recaller interface {
	RecallBlock(ctx context.Context, queryText string) (string, error)
}

// Journal records an episodic summary of a completed turn.
type Journal interface {
	RecordTurn(ctx context.Context, sess *models.Session, summary string) error
}

// untrustedOutputTools produce content sourced from outside the
// system (web pages, command output, search results); their outputs
// pass through the prompt-injection check.
var untrustedOutputTools = map[string]bool{
	"shell":        true,
	"browser":      true,
	"brave_search": true,
}

// Engine runs one turn: alternate LLM calls and tool dispatches until
// a terminal message, a budget trip, or the deadline.
type Engine struct {
	registry *Registry
	router   Router
	clients  ClientFactory

	skills   SkillSource
	plans    PlanState
	recaller Recaller
	journal  Journal

	logger *slog.Logger
	now    func() time.Time
}

// Router is the slice of the model router the engine uses.
type Router interface {
	EffectiveTier(prefs models.Preferences, contextTier string, codeActivity bool) string
	Resolve(tier string) (*routing.Resolution, error)
}

// SkillSource loads skill content for prompt assembly and skill
// transitions.
type SkillSource interface {
	Get(name string) (*models.Skill, error)
}

// PlanState reports whether plan mode is active for a context key.
type PlanState interface {
	IsActive(contextKey string) bool
	Content(contextKey string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNow injects a clock for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithClientFactory overrides LLM client construction.
func WithClientFactory(f ClientFactory) Option {
	return func(e *Engine) { e.clients = f }
}

// WithSkills attaches the skill source.
func WithSkills(s SkillSource) Option {
	return func(e *Engine) { e.skills = s }
}

// WithPlans attaches the plan-mode service.
func WithPlans(p PlanState) Option {
	return func(e *Engine) { e.plans = p }
}

// WithRecaller attaches the memory recall source.
func WithRecaller(r Recaller) Option {
	return func(e *Engine) { e.recaller = r }
}

// WithJournal attaches the episodic journal sink.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// NewEngine creates a turn engine over a registry and router.
func NewEngine(registry *Registry, router Router, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		router:   router,
		logger:   slog.Default().With("component", "engine"),
		now:      time.Now,
	}
	e.clients = func(res *routing.Resolution) llm.Client {
		return llm.NewOpenAIClient(res.APIKey, res.BaseURL, res.TimeoutSeconds)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.plans != nil && e.registry.PlanGate == nil {
		e.registry.PlanGate = func(tc *Context) bool { return e.plans.IsActive(tc.Key()) }
	}
	return e
}

// RunTurn executes one turn for the inbound message. Budget and
// deadline terminations are results, not errors; an error means the
// turn could not run at all (no eligible provider, upstream failure).
func (e *Engine) RunTurn(ctx context.Context, tc *Context, inbound models.Inbound) (*models.TurnResult, error) {
	if inbound.Text == "" && len(inbound.Attachments) == 0 {
		return nil, fmt.Errorf("inbound message is empty")
	}

	turnCtx, cancel := context.WithDeadline(ctx, tc.Budget.Deadline)
	defer cancel()

	e.seed(turnCtx, tc, inbound)

	emptyStreak := 0
	for {
		if tc.DeadlineExceeded(e.now()) {
			return e.finalize(ctx, tc, budgetMessage("deadline"), models.TerminatedDeadline), nil
		}
		if err := tc.NoteLLMCall(); err != nil {
			return e.finalize(ctx, tc, budgetMessage("llmCalls"), models.TerminatedBudget), nil
		}

		resp, err := e.callModel(turnCtx, tc)
		if err != nil {
			if turnCtx.Err() != nil {
				return e.finalize(ctx, tc, budgetMessage("deadline"), models.TerminatedDeadline), nil
			}
			return nil, err
		}

		if resp.Kind == llm.KindFinal {
			if resp.Text == "" {
				emptyStreak++
				if emptyStreak >= 2 {
					e.logger.Warn("model made no progress twice, terminating")
					return e.finalize(ctx, tc, "", models.TerminatedInternal), nil
				}
				continue
			}
			tc.Append(models.Message{Role: models.RoleAssistant, Content: resp.Text, CreatedAt: e.now()})
			return e.finalize(ctx, tc, resp.Text, models.TerminatedComplete), nil
		}

		emptyStreak = 0
		tc.Append(models.Message{Role: models.RoleAssistant, ToolCalls: resp.Calls, CreatedAt: e.now()})

		for _, call := range resp.Calls {
			if tc.DeadlineExceeded(e.now()) {
				return e.finalize(ctx, tc, budgetMessage("deadline"), models.TerminatedDeadline), nil
			}
			if err := tc.NoteToolExecution(); err != nil {
				return e.finalize(ctx, tc, budgetMessage("toolExecutions"), models.TerminatedBudget), nil
			}
			e.dispatchOne(turnCtx, tc, call)
		}

		if tc.LoopComplete() {
			return e.finalize(ctx, tc, tc.Voice().Text, models.TerminatedComplete), nil
		}
		e.applySkillTransition(tc)
	}
}

// seed installs the system prompt, prior session history, and the
// inbound user message as the turn transcript.
func (e *Engine) seed(ctx context.Context, tc *Context, inbound models.Inbound) {
	system := e.systemPrompt(ctx, tc, inbound.Text)
	tc.Messages = append(tc.Messages, models.Message{Role: models.RoleSystem, Content: system})
	if tc.Session != nil {
		tc.Messages = append(tc.Messages, tc.Session.Messages...)
	}
	tc.Append(models.Message{Role: models.RoleUser, Content: inbound.Text, CreatedAt: e.now()})
}

func (e *Engine) callModel(ctx context.Context, tc *Context) (*llm.Response, error) {
	tier := e.router.EffectiveTier(tc.Prefs, tc.ModelTier(), tc.CodeActivity())
	res, err := e.router.Resolve(tier)
	if err != nil {
		return nil, fmt.Errorf("resolve tier %s: %w", tier, err)
	}

	req := &llm.Request{
		Model:       res.Model,
		Messages:    tc.Messages,
		Tools:       e.registry.DescribeForLLM(tc),
		Reasoning:   res.Reasoning,
		Temperature: res.Temperature,
	}
	resp, err := e.clients(res).Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm call via %s: %w", res.Provider, err)
	}
	return resp, nil
}

// dispatchOne runs a single tool call and appends its result message.
// Failures never short-circuit the batch.
func (e *Engine) dispatchOne(ctx context.Context, tc *Context, call models.ToolCall) {
	started := e.now()
	result := e.registry.Dispatch(ctx, tc, call)

	if routing.IsCodeTool(call.Name) {
		tc.MarkCodeActivity()
	}
	for _, a := range ResultAttachments(result) {
		tc.AddAttachment(a)
	}
	for _, m := range ResultMilestones(result) {
		tc.AddMilestone(m)
	}

	content := renderResult(result)
	if result.Success && untrustedOutputTools[call.Name] &&
		tc.Snapshot.IsPromptInjectionDetectionEnabled() &&
		guard.FlagPromptInjection(content) {
		content = guard.AnnotateToolOutput(content)
	}

	if !result.Success {
		e.logger.Warn("tool failed",
			"tool", call.Name,
			"kind", string(result.FailureKind),
			"elapsed", e.now().Sub(started))
	}
	tc.Append(models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		CreatedAt:  e.now(),
	})
}

// applySkillTransition swaps the active skill and rebuilds the system
// prompt in place.
func (e *Engine) applySkillTransition(tc *Context) {
	req := tc.SkillTransition()
	if req == nil || e.skills == nil {
		return
	}
	skill, err := e.skills.Get(req.Skill)
	if err != nil {
		e.logger.Warn("skill transition failed", "skill", req.Skill, "error", err)
		tc.SetActiveSkill(tc.ActiveSkill())
		return
	}
	tc.SetActiveSkill(skill.Name)
	if len(tc.Messages) > 0 && tc.Messages[0].Role == models.RoleSystem {
		tc.Messages[0].Content = e.composePrompt(tc, skill.Content, "")
	}
}

// finalize assembles the turn result, persists the transcript onto the
// session, and journals the episode.
func (e *Engine) finalize(ctx context.Context, tc *Context, finalText string, term models.Termination) *models.TurnResult {
	if term != models.TerminatedComplete {
		tc.AddMilestone(models.Milestone{
			Kind:      models.MilestoneTurnTerminated,
			Detail:    string(term),
			CreatedAt: e.now(),
		})
		if finalText != "" {
			tc.Append(models.Message{Role: models.RoleAssistant, Content: finalText, CreatedAt: e.now()})
		}
	}

	e.persistSession(tc)

	if e.journal != nil && tc.Snapshot.IsMemoryEnabled() && finalText != "" {
		if err := e.journal.RecordTurn(ctx, tc.Session, finalText); err != nil {
			e.logger.Warn("episodic journal write failed", "error", err)
		}
	}

	llmCalls, toolExecutions := tc.Counters()
	return &models.TurnResult{
		FinalText:      finalText,
		Attachments:    tc.Attachments(),
		Voice:          tc.Voice(),
		Milestones:     tc.Milestones(),
		Termination:    term,
		LLMCalls:       llmCalls,
		ToolExecutions: toolExecutions,
	}
}

// persistSession appends this turn's new messages to the session so
// subsequent turns observe them.
func (e *Engine) persistSession(tc *Context) {
	if tc.Session == nil {
		return
	}
	prior := len(tc.Session.Messages)
	// Transcript layout: system prompt, prior history, then this turn.
	start := 1 + prior
	if start > len(tc.Messages) {
		return
	}
	tc.Session.Messages = append(tc.Session.Messages, tc.Messages[start:]...)
	tc.Session.UpdatedAt = e.now()
}

func budgetMessage(which string) string {
	return fmt.Sprintf("Turn budget exceeded (%s). Partial work preserved.", which)
}

// renderResult flattens a tool result into the message content the
// model sees next call.
func renderResult(r *models.ToolResult) string {
	if r.Success {
		if r.Output == "" {
			return "(no output)"
		}
		return r.Output
	}
	return fmt.Sprintf("Error (%s): %s", r.FailureKind, r.Error)
}
