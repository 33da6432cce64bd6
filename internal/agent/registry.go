package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tessel-ai/tessel/internal/llm"
	"github.com/tessel-ai/tessel/pkg/models"
)

// PlanToolPrefix marks tools gated by plan mode.
const PlanToolPrefix = "plan_"

// Registry holds the named tools, their schemas, and enable gates.
// Registration happens once at startup from the static contribution
// table; lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema

	// PlanGate reports whether plan mode is active for a context.
	// When nil, plan_* tools are never visible.
	PlanGate func(tc *Context) bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, replacing any tool of the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	delete(r.compiled, tool.Name())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the tools enabled for the given context, sorted by name.
func (r *Registry) List(tc *Context) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if tool.Enabled(tc.Snapshot) {
			out = append(out, tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// DescribeForLLM returns the schema surface visible to the model:
// enabled tools, with plan_* tools filtered by the plan-mode gate.
func (r *Registry) DescribeForLLM(tc *Context) []llm.ToolSpec {
	planActive := r.PlanGate != nil && r.PlanGate(tc)
	tools := r.List(tc)
	specs := make([]llm.ToolSpec, 0, len(tools))
	for _, tool := range tools {
		if strings.HasPrefix(tool.Name(), PlanToolPrefix) && !planActive {
			continue
		}
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	return specs
}

// Dispatch validates and executes one tool call. Tool failures come
// back as results, never as errors; the engine appends them for the
// model to react to.
func (r *Registry) Dispatch(ctx context.Context, tc *Context, call models.ToolCall) *models.ToolResult {
	tool, ok := r.Get(call.Name)
	if !ok {
		return models.Fail(models.FailureNotFound, "tool not found: "+call.Name)
	}
	if !tool.Enabled(tc.Snapshot) {
		return models.Fail(models.FailureDisabled, "tool disabled: "+call.Name)
	}

	var value any
	if err := json.Unmarshal(normalizeParams(call.Arguments), &value); err != nil {
		return models.Fail(models.FailureValidation, "tool parameters are not valid JSON: "+err.Error())
	}
	if _, isObject := value.(map[string]any); !isObject {
		return models.Fail(models.FailureValidation, "tool parameters must be an object")
	}
	if schema, err := r.schemaFor(tool); err == nil && schema != nil {
		if err := schema.Validate(value); err != nil {
			return models.Fail(models.FailureValidation, "invalid parameters: "+validationMessage(err))
		}
	}

	result, err := tool.Execute(ctx, tc, normalizeParams(call.Arguments))
	if err != nil {
		return models.Fail(models.FailureInternalError, fmt.Sprintf("tool %s failed: %v", call.Name, err))
	}
	if result == nil {
		return models.Fail(models.FailureInternalError, "tool "+call.Name+" returned no result")
	}
	return result
}

func normalizeParams(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("null")
	}
	return args
}

func (r *Registry) schemaFor(tool Tool) (*jsonschema.Schema, error) {
	r.mu.RLock()
	schema, ok := r.compiled[tool.Name()]
	r.mu.RUnlock()
	if ok {
		return schema, nil
	}

	raw := tool.Schema()
	if len(raw) == 0 {
		return nil, nil
	}
	schema, err := jsonschema.CompileString(tool.Name()+".json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("tool %s schema does not compile: %w", tool.Name(), err)
	}
	r.mu.Lock()
	r.compiled[tool.Name()] = schema
	r.mu.Unlock()
	return schema, nil
}

func validationMessage(err error) string {
	var ve *jsonschema.ValidationError
	if ok := asValidationError(err, &ve); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if loc == "" {
			return leaf.Message
		}
		return loc + ": " + leaf.Message
	}
	return err.Error()
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}
