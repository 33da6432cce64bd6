package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// Tool is the capability contract every executor implements. Shared
// behavior (parameter parsing, schema checks) lives in helper
// functions, not a base type.
type Tool interface {
	// Name returns the unique tool name shown to the model.
	Name() string

	// Description explains the tool to the model.
	Description() string

	// Schema returns the JSON Schema for the tool's input.
	Schema() json.RawMessage

	// Enabled reports whether the tool is available under the given
	// settings snapshot.
	Enabled(snap *config.Snapshot) bool

	// Execute runs the tool. Failures are reported as ToolResult
	// values, never as errors; a non-nil error means the tool itself
	// is broken and maps to INTERNAL_ERROR.
	Execute(ctx context.Context, tc *Context, params json.RawMessage) (*models.ToolResult, error)
}

// ErrNotAnObject is returned when tool parameters are not a JSON
// object.
var ErrNotAnObject = errors.New("tool parameters must be an object")

// ParseParams decodes tool parameters into v. Missing, null, or
// non-object parameters are rejected so callers can map the error to
// VALIDATION.
func ParseParams(params json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrNotAnObject
	}
	if trimmed[0] != '{' {
		return ErrNotAnObject
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	return dec.Decode(v)
}

// DataAttachments is the ToolResult.Data key carrying attachments.
const DataAttachments = "attachments"

// DataMilestones is the ToolResult.Data key carrying milestone events.
const DataMilestones = "milestones"

// ResultAttachments extracts attachments from a tool result's side
// channel.
func ResultAttachments(r *models.ToolResult) []models.Attachment {
	if r == nil || r.Data == nil {
		return nil
	}
	atts, _ := r.Data[DataAttachments].([]models.Attachment)
	return atts
}

// ResultMilestones extracts milestone events from a tool result's side
// channel.
func ResultMilestones(r *models.ToolResult) []models.Milestone {
	if r == nil || r.Data == nil {
		return nil
	}
	ms, _ := r.Data[DataMilestones].([]models.Milestone)
	return ms
}
