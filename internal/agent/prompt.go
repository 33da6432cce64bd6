package agent

import (
	"context"
	"strings"
)

// planInstructions is appended to the system prompt while plan mode is
// active for the context.
const planInstructions = `You are in plan mode. Draft and refine a plan before acting:
use plan_set_content to record the plan and plan_finalize when the user
approves it. Do not execute side-effecting tools until the plan is
finalized.`

// systemPrompt assembles the turn's system prompt: persona, active
// skill, memory recall, and plan-mode instructions.
func (e *Engine) systemPrompt(ctx context.Context, tc *Context, userText string) string {
	var skillContent string
	if name := tc.ActiveSkill(); name != "" && e.skills != nil {
		if skill, err := e.skills.Get(name); err == nil {
			skillContent = skill.Content
		}
	}

	var recall string
	if e.recaller != nil && tc.Snapshot.IsMemoryEnabled() {
		block, err := e.recaller.RecallBlock(ctx, userText)
		if err != nil {
			e.logger.Warn("memory recall failed", "error", err)
		} else {
			recall = block
		}
	}

	return e.composePrompt(tc, skillContent, recall)
}

func (e *Engine) composePrompt(tc *Context, skillContent, recall string) string {
	var parts []string

	persona := tc.Snapshot.Persona()
	if persona == "" {
		persona = "You are a helpful assistant."
	}
	parts = append(parts, persona)

	if skillContent != "" {
		parts = append(parts, "## Active skill\n\n"+skillContent)
	}
	if recall != "" {
		parts = append(parts, "## Relevant memory\n\n"+recall)
	}
	if e.plans != nil && e.plans.IsActive(tc.Key()) {
		section := planInstructions
		if content := e.plans.Content(tc.Key()); content != "" {
			section += "\n\n## Current plan\n\n" + content
		}
		parts = append(parts, section)
	}

	return strings.Join(parts, "\n\n")
}
