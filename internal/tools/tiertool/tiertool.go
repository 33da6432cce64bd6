// Package tiertool implements the set_tier tool, letting the model
// escalate or change its own tier for the rest of the turn.
package tiertool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/agent/routing"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

type params struct {
	Tier string `json:"tier"`
}

// Tool is the tier override executor.
type Tool struct{}

// New creates the set_tier tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "set_tier" }

func (t *Tool) Description() string {
	return "Switch the model tier for the rest of this turn. One of: " + strings.Join(settableNames(), ", ") + "."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tier": {"type": "string", "enum": ["balanced", "smart", "coding", "deep"]}
		},
		"required": ["tier"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsTierToolEnabled() }

func (t *Tool) Execute(_ context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	if tc == nil {
		return models.Fail(models.FailureInternalError, "No agent context"), nil
	}

	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	tier := strings.ToLower(strings.TrimSpace(p.Tier))
	if !routing.SettableTiers[tier] {
		return models.Fail(models.FailureValidation,
			fmt.Sprintf("invalid tier %q, must be one of: %s", p.Tier, strings.Join(settableNames(), ", "))), nil
	}
	if tc.Prefs.TierForce {
		return models.Fail(models.FailurePolicyDenied, "model tier is pinned by user preference"), nil
	}

	tc.SetModelTier(tier)
	return models.OK(fmt.Sprintf("Model tier set to %s", tier)), nil
}

func settableNames() []string {
	names := make([]string, 0, len(routing.SettableTiers))
	for name := range routing.SettableTiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
