// Package voice implements the send_voice tool: it marks the turn for
// a spoken response and ends the tool loop.
package voice

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

type params struct {
	Text string `json:"text"`
}

// Tool is the voice response executor.
type Tool struct{}

// New creates the send_voice tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "send_voice" }

func (t *Tool) Description() string {
	return "Reply with a voice message instead of text. The given text is spoken to the user."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "Text to speak"}
		},
		"required": ["text"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsVoiceEnabled() }

func (t *Tool) Execute(_ context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	if tc == nil {
		return models.Fail(models.FailureInternalError, "No agent context"), nil
	}

	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	if strings.TrimSpace(p.Text) == "" {
		return models.Fail(models.FailureValidation, "text is required"), nil
	}

	tc.RequestVoice(p.Text)
	return models.OK("Voice response queued."), nil
}
