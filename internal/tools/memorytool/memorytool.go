// Package memorytool exposes the memory engine operations as one
// tool.
package memorytool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/memory"
	"github.com/tessel-ai/tessel/pkg/models"
)

type params struct {
	Operation string `json:"operation"`

	ID          string   `json:"id,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Layer       string   `json:"layer,omitempty"`
	Type        string   `json:"type,omitempty"`
	Title       *string  `json:"title,omitempty"`
	Content     *string  `json:"content,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	References  []string `json:"references,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Salience    *float64 `json:"salience,omitempty"`
	TTLDays     *int     `json:"ttl_days,omitempty"`

	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`

	TargetLayer string `json:"target_layer,omitempty"`
}

// Tool is the memory executor.
type Tool struct {
	engine *memory.Engine
}

// New creates the memory tool over an engine.
func New(engine *memory.Engine) *Tool {
	return &Tool{engine: engine}
}

func (t *Tool) Name() string { return "memory" }

func (t *Tool) Description() string {
	return "Store, search, update, promote, and forget long-term memory items."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {
				"type": "string",
				"enum": ["memory_add", "memory_search", "memory_update", "memory_promote", "memory_forget"]
			},
			"id": {"type": "string"},
			"fingerprint": {"type": "string"},
			"layer": {"type": "string", "enum": ["SEMANTIC", "EPISODIC", "PROCEDURAL"]},
			"type": {"type": "string"},
			"title": {"type": "string"},
			"content": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"references": {"type": "array", "items": {"type": "string"}},
			"confidence": {"type": "number"},
			"salience": {"type": "number"},
			"ttl_days": {"type": "integer"},
			"query": {"type": "string"},
			"limit": {"type": "integer"},
			"target_layer": {"type": "string", "enum": ["SEMANTIC", "PROCEDURAL"]}
		},
		"required": ["operation"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsMemoryEnabled() }

func (t *Tool) Execute(ctx context.Context, _ *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}

	switch p.Operation {
	case "memory_add":
		return t.add(ctx, p)
	case "memory_search":
		return t.search(ctx, p)
	case "memory_update":
		return t.update(ctx, p)
	case "memory_promote":
		return t.promote(ctx, p)
	case "memory_forget":
		return t.forget(ctx, p)
	default:
		return models.Fail(models.FailureValidation, fmt.Sprintf("unknown operation %q", p.Operation)), nil
	}
}

func (t *Tool) add(ctx context.Context, p params) (*models.ToolResult, error) {
	in := memory.AddInput{
		Layer:      models.MemoryLayer(p.Layer),
		Type:       p.Type,
		Tags:       p.Tags,
		References: p.References,
		TTLDays:    p.TTLDays,
	}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Content != nil {
		in.Content = *p.Content
	}
	if p.Confidence != nil {
		in.Confidence = *p.Confidence
	}
	if p.Salience != nil {
		in.Salience = *p.Salience
	}

	item, err := t.engine.Add(ctx, in)
	if err != nil {
		return failure(err), nil
	}
	return models.OK(fmt.Sprintf("Stored %s memory %s (fingerprint %s)", item.Layer, item.ID, shortFingerprint(item.Fingerprint))), nil
}

func (t *Tool) search(ctx context.Context, p params) (*models.ToolResult, error) {
	if strings.TrimSpace(p.Query) == "" {
		return models.Fail(models.FailureValidation, "query is required"), nil
	}
	q := models.MemoryQuery{QueryText: p.Query}
	if p.Limit != 0 || p.Layer != "" {
		limit := p.Limit
		if limit == 0 {
			limit = 5
		}
		layers := []models.MemoryLayer{models.LayerSemantic, models.LayerEpisodic, models.LayerProcedural}
		if p.Layer != "" {
			layers = []models.MemoryLayer{models.MemoryLayer(p.Layer)}
		}
		q.TopK = make(map[models.MemoryLayer]int, len(layers))
		for _, layer := range layers {
			q.TopK[layer] = limit
		}
	}

	results, err := t.engine.Search(ctx, q)
	if err != nil {
		return failure(err), nil
	}
	if len(results) == 0 {
		return models.OK("No memory items found."), nil
	}
	var b strings.Builder
	for _, sm := range results {
		fmt.Fprintf(&b, "[%s/%s] (id %s, score %.2f)", sm.Item.Layer, sm.Item.Type, sm.Item.ID, sm.Score)
		if sm.Item.Title != "" {
			fmt.Fprintf(&b, " %s:", sm.Item.Title)
		}
		fmt.Fprintf(&b, " %s\n", sm.Item.Content)
	}
	return models.OK(strings.TrimRight(b.String(), "\n")), nil
}

func (t *Tool) update(ctx context.Context, p params) (*models.ToolResult, error) {
	item, err := t.engine.Update(ctx, memory.UpdateInput{
		ID:          p.ID,
		Fingerprint: p.Fingerprint,
		Title:       p.Title,
		Content:     p.Content,
		Tags:        p.Tags,
		References:  p.References,
		Confidence:  p.Confidence,
		Salience:    p.Salience,
		TTLDays:     p.TTLDays,
	})
	if err != nil {
		return failure(err), nil
	}
	return models.OK(fmt.Sprintf("Updated memory %s", item.ID)), nil
}

func (t *Tool) promote(ctx context.Context, p params) (*models.ToolResult, error) {
	in := memory.PromoteInput{
		ID:          p.ID,
		Fingerprint: p.Fingerprint,
		TargetLayer: models.MemoryLayer(p.TargetLayer),
	}
	if p.Content != nil {
		in.Content = *p.Content
	}
	item, err := t.engine.Promote(ctx, in)
	if err != nil {
		return failure(err), nil
	}
	return models.OK(fmt.Sprintf("Promoted memory %s to %s (confidence %.2f)", item.ID, item.Layer, item.Confidence)), nil
}

func (t *Tool) forget(ctx context.Context, p params) (*models.ToolResult, error) {
	item, err := t.engine.Forget(ctx, memory.ForgetInput{
		ID:          p.ID,
		Fingerprint: p.Fingerprint,
		Query:       p.Query,
		Layer:       models.MemoryLayer(p.Layer),
	})
	if err != nil {
		return failure(err), nil
	}
	return models.OK(fmt.Sprintf("Forgot memory %s", item.ID)), nil
}

// failure maps engine errors onto the failure taxonomy. Only
// input-shape errors read as VALIDATION; embedder faults are upstream
// and anything else (store faults included) is internal.
func failure(err error) *models.ToolResult {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return models.Fail(models.FailureNotFound, err.Error())
	case errors.Is(err, memory.ErrNoMatch):
		return models.Fail(models.FailureUpstreamError, "No memory items matched")
	case errors.Is(err, memory.ErrInvalidInput):
		return models.Fail(models.FailureValidation, err.Error())
	case errors.Is(err, memory.ErrEmbedder):
		return models.Fail(models.FailureUpstreamError, err.Error())
	default:
		return models.Fail(models.FailureInternalError, err.Error())
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
