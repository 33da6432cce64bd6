// Package datetime implements the datetime tool: timezone-aware
// current time, defaulting to the user's preferred timezone.
package datetime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

type params struct {
	Timezone string `json:"timezone,omitempty"`
}

// Tool is the datetime executor.
type Tool struct {
	now func() time.Time
}

// New creates the datetime tool.
func New() *Tool { return &Tool{now: time.Now} }

// NewWithClock creates the tool with an injected clock.
func NewWithClock(now func() time.Time) *Tool { return &Tool{now: now} }

func (t *Tool) Name() string { return "datetime" }

func (t *Tool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {"type": "string", "description": "IANA timezone name, e.g. Asia/Tokyo"}
		}
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsDatetimeEnabled() }

func (t *Tool) Execute(_ context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}

	zone := p.Timezone
	if zone == "" && tc != nil {
		zone = tc.Prefs.Timezone
	}
	loc := time.UTC
	if zone != "" {
		var err error
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return models.Fail(models.FailureValidation, fmt.Sprintf("unknown timezone %q", zone)), nil
		}
	}

	now := t.now().In(loc)
	result := models.OK(now.Format("Monday, January 2, 2006 15:04:05 MST"))
	return result.WithData("timezone", loc.String()), nil
}
