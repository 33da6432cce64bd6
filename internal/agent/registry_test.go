package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

type fakeTool struct {
	name    string
	schema  string
	enabled bool
	execute func(ctx context.Context, tc *Context, params json.RawMessage) (*models.ToolResult, error)
}

func (f *fakeTool) Name() string                       { return f.name }
func (f *fakeTool) Description() string                { return "fake tool " + f.name }
func (f *fakeTool) Schema() json.RawMessage            { return json.RawMessage(f.schema) }
func (f *fakeTool) Enabled(_ *config.Snapshot) bool    { return f.enabled }
func (f *fakeTool) Execute(ctx context.Context, tc *Context, params json.RawMessage) (*models.ToolResult, error) {
	if f.execute != nil {
		return f.execute(ctx, tc, params)
	}
	return models.OK("ok"), nil
}

const echoSchema = `{
	"type": "object",
	"properties": {
		"text": {"type": "string"}
	},
	"required": ["text"]
}`

func testContext(t *testing.T) *Context {
	t.Helper()
	snap := config.NewSnapshot(config.Default())
	sess := &models.Session{ID: "sess-1", ChannelType: "cli", ChatID: "chat-1"}
	return NewContext(sess, models.Preferences{}, snap, time.Now())
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Dispatch(context.Background(), testContext(t), models.ToolCall{Name: "nope"})
	if res.Success {
		t.Fatal("dispatch of unknown tool succeeded")
	}
	if res.FailureKind != models.FailureNotFound {
		t.Errorf("FailureKind = %s, want NOT_FOUND", res.FailureKind)
	}
}

func TestDispatchDisabledTool(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(&fakeTool{name: "echo", schema: echoSchema, enabled: false, execute: func(context.Context, *Context, json.RawMessage) (*models.ToolResult, error) {
		called = true
		return models.OK("ok"), nil
	}})

	res := r.Dispatch(context.Background(), testContext(t), models.ToolCall{Name: "echo", Arguments: json.RawMessage(`{"text":"x"}`)})
	if res.FailureKind != models.FailureDisabled {
		t.Errorf("FailureKind = %s, want DISABLED", res.FailureKind)
	}
	if called {
		t.Error("disabled tool was executed")
	}
}

func TestDispatchParamValidation(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "echo", schema: echoSchema, enabled: true})

	tests := []struct {
		name string
		args string
	}{
		{"empty", ""},
		{"null", "null"},
		{"array", `["text"]`},
		{"scalar", `"text"`},
		{"missing required", `{}`},
		{"wrong type", `{"text": 7}`},
		{"malformed", `{"text":`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Dispatch(context.Background(), testContext(t), models.ToolCall{
				Name:      "echo",
				Arguments: json.RawMessage(tc.args),
			})
			if res.Success {
				t.Fatal("dispatch succeeded")
			}
			if res.FailureKind != models.FailureValidation {
				t.Errorf("FailureKind = %s, want VALIDATION", res.FailureKind)
			}
		})
	}
}

func TestDispatchValidParams(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Register(&fakeTool{name: "echo", schema: echoSchema, enabled: true, execute: func(_ context.Context, _ *Context, params json.RawMessage) (*models.ToolResult, error) {
		var p struct {
			Text string `json:"text"`
		}
		if err := ParseParams(params, &p); err != nil {
			return nil, err
		}
		got = p.Text
		return models.OK(p.Text), nil
	}})

	res := r.Dispatch(context.Background(), testContext(t), models.ToolCall{
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hello"}`),
	})
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if got != "hello" {
		t.Errorf("tool saw text %q", got)
	}
}

func TestDispatchExecutorError(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "boom", schema: `{"type":"object"}`, enabled: true, execute: func(context.Context, *Context, json.RawMessage) (*models.ToolResult, error) {
		return nil, errors.New("kaput")
	}})

	res := r.Dispatch(context.Background(), testContext(t), models.ToolCall{Name: "boom", Arguments: json.RawMessage(`{}`)})
	if res.FailureKind != models.FailureInternalError {
		t.Errorf("FailureKind = %s, want INTERNAL_ERROR", res.FailureKind)
	}
	if !strings.Contains(res.Error, "kaput") {
		t.Errorf("Error = %q, want the executor error preserved", res.Error)
	}
}

func TestDispatchNilResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "void", schema: `{"type":"object"}`, enabled: true, execute: func(context.Context, *Context, json.RawMessage) (*models.ToolResult, error) {
		return nil, nil
	}})

	res := r.Dispatch(context.Background(), testContext(t), models.ToolCall{Name: "void", Arguments: json.RawMessage(`{}`)})
	if res.FailureKind != models.FailureInternalError {
		t.Errorf("FailureKind = %s, want INTERNAL_ERROR", res.FailureKind)
	}
}

func TestDescribeForLLMFiltersDisabled(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "on", schema: `{"type":"object"}`, enabled: true})
	r.Register(&fakeTool{name: "off", schema: `{"type":"object"}`, enabled: false})

	specs := r.DescribeForLLM(testContext(t))
	if len(specs) != 1 || specs[0].Name != "on" {
		t.Errorf("DescribeForLLM = %+v, want only the enabled tool", specs)
	}
}

func TestDescribeForLLMPlanGate(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "plan_edit", schema: `{"type":"object"}`, enabled: true})
	r.Register(&fakeTool{name: "shell", schema: `{"type":"object"}`, enabled: true})

	tc := testContext(t)

	names := func() []string {
		var out []string
		for _, s := range r.DescribeForLLM(tc) {
			out = append(out, s.Name)
		}
		return out
	}

	if got := names(); len(got) != 1 || got[0] != "shell" {
		t.Errorf("without gate: %v, want [shell]", got)
	}

	r.PlanGate = func(*Context) bool { return true }
	if got := names(); len(got) != 2 {
		t.Errorf("with gate active: %v, want both tools", got)
	}
}
