// Package plantool implements the plan_* tools over the plan service.
// All three are hidden from the LLM and denied at dispatch unless plan
// mode is active for the calling context.
package plantool

import (
	"context"
	"encoding/json"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/plan"
	"github.com/tessel-ai/tessel/pkg/models"
)

// Tools returns the three plan executors over one service.
func Tools(svc *plan.Service) []agent.Tool {
	return []agent.Tool{
		&getTool{svc: svc},
		&setTool{svc: svc},
		&finalizeTool{svc: svc},
	}
}

type getTool struct{ svc *plan.Service }

func (t *getTool) Name() string        { return "plan_get" }
func (t *getTool) Description() string { return "Read the current plan document." }

func (t *getTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *getTool) Enabled(*config.Snapshot) bool { return true }

func (t *getTool) Execute(_ context.Context, tc *agent.Context, _ json.RawMessage) (*models.ToolResult, error) {
	if denied := requireActive(t.svc, tc); denied != nil {
		return denied, nil
	}
	content := t.svc.Content(tc.Key())
	if content == "" {
		return models.OK("The plan is empty."), nil
	}
	return models.OK(content), nil
}

type setTool struct{ svc *plan.Service }

func (t *setTool) Name() string { return "plan_set_content" }

func (t *setTool) Description() string {
	return "Replace the plan document with new markdown content."
}

func (t *setTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {"type": "string", "description": "Plan markdown"}
		},
		"required": ["content"]
	}`)
}

func (t *setTool) Enabled(*config.Snapshot) bool { return true }

func (t *setTool) Execute(_ context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	if denied := requireActive(t.svc, tc); denied != nil {
		return denied, nil
	}
	var p struct {
		Content string `json:"content"`
	}
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	t.svc.SetContent(tc.Key(), p.Content)
	return models.OK("Plan updated."), nil
}

type finalizeTool struct{ svc *plan.Service }

func (t *finalizeTool) Name() string { return "plan_finalize" }

func (t *finalizeTool) Description() string {
	return "Finalize the plan, persist it, and leave plan mode."
}

func (t *finalizeTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *finalizeTool) Enabled(*config.Snapshot) bool { return true }

func (t *finalizeTool) Execute(ctx context.Context, tc *agent.Context, _ json.RawMessage) (*models.ToolResult, error) {
	if denied := requireActive(t.svc, tc); denied != nil {
		return denied, nil
	}
	out, err := t.svc.Finalize(ctx, tc.Key())
	if err != nil {
		return models.Fail(models.FailureInternalError, err.Error()), nil
	}
	return models.OK(out), nil
}

func requireActive(svc *plan.Service, tc *agent.Context) *models.ToolResult {
	if tc == nil {
		return models.Fail(models.FailureInternalError, "No agent context")
	}
	if !svc.IsActive(tc.Key()) {
		return models.Fail(models.FailurePolicyDenied, "plan mode is not active")
	}
	return nil
}
