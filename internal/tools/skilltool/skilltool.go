// Package skilltool implements the skill_transition tool: it records a
// transition request on the turn context, which the engine applies
// after the current dispatch batch.
package skilltool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/skills"
	"github.com/tessel-ai/tessel/pkg/models"
)

type params struct {
	Skill  string `json:"skill"`
	Reason string `json:"reason,omitempty"`
}

// Tool is the skill transition executor.
type Tool struct {
	manager *skills.Manager
}

// New creates the tool over a skill manager.
func New(manager *skills.Manager) *Tool {
	return &Tool{manager: manager}
}

func (t *Tool) Name() string { return "skill_transition" }

func (t *Tool) Description() string {
	return "Switch to a different skill for the rest of this conversation."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"skill": {"type": "string", "description": "Name of the skill to activate"},
			"reason": {"type": "string"}
		},
		"required": ["skill"]
	}`)
}

func (t *Tool) Enabled(*config.Snapshot) bool { return true }

func (t *Tool) Execute(_ context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	if tc == nil {
		return models.Fail(models.FailureInternalError, "No agent context"), nil
	}

	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	if strings.TrimSpace(p.Skill) == "" {
		return models.Fail(models.FailureValidation, "skill is required"), nil
	}

	skill, err := t.manager.Get(p.Skill)
	if errors.Is(err, skills.ErrNotFound) {
		return models.Fail(models.FailureNotFound, fmt.Sprintf("unknown skill %q", p.Skill)), nil
	}
	if err != nil {
		return models.Fail(models.FailureInternalError, err.Error()), nil
	}
	if !skill.Available {
		return models.Fail(models.FailureValidation, fmt.Sprintf("skill %q is not available", p.Skill)), nil
	}

	tc.RequestSkillTransition(models.SkillTransitionRequest{Skill: p.Skill, Reason: p.Reason})
	return models.OK(fmt.Sprintf("Transitioning to skill %q", p.Skill)), nil
}
