// Package llm implements the model-facing client. Every provider is
// reached through the OpenAI-compatible chat completions surface with a
// provider-specific base URL.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tessel-ai/tessel/pkg/models"
)

// ResponseKind distinguishes a terminal message from a tool-call batch.
type ResponseKind string

const (
	KindFinal     ResponseKind = "FINAL"
	KindToolCalls ResponseKind = "TOOL_CALLS"
)

// ToolSpec is the schema surface of one tool as shown to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Request is one chat completion call.
type Request struct {
	Model    string
	Messages []models.Message
	Tools    []ToolSpec

	// Reasoning, when non-empty, selects the reasoning effort and
	// suppresses the temperature (reasoning models ignore it).
	Reasoning   string
	Temperature float64
}

// Response is either a final text or a batch of tool calls.
type Response struct {
	Kind  ResponseKind
	Text  string
	Calls []models.ToolCall
}

// Client is the narrow interface the engine depends on. Network errors
// map to UPSTREAM_ERROR at the call site; HTTP 429 is surfaced, not
// retried here.
type Client interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// completionAPI is the slice of the OpenAI client used, extracted so
// tests can provide a fake.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient talks to one OpenAI-compatible provider endpoint.
type OpenAIClient struct {
	api     completionAPI
	timeout time.Duration
}

// Timeout bounds, seconds.
const (
	minTimeoutSeconds     = 1
	maxTimeoutSeconds     = 3600
	defaultTimeoutSeconds = 300
)

// clampTimeout normalizes a configured request timeout.
func clampTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = defaultTimeoutSeconds
	}
	if seconds < minTimeoutSeconds {
		seconds = minTimeoutSeconds
	}
	if seconds > maxTimeoutSeconds {
		seconds = maxTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// NewOpenAIClient creates a client for one provider endpoint. baseURL
// may be empty for the default OpenAI endpoint.
func NewOpenAIClient(apiKey, baseURL string, timeoutSeconds int) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIClient{
		api:     openai.NewClientWithConfig(cfg),
		timeout: clampTimeout(timeoutSeconds),
	}
}

// Call sends the request under the provider timeout and decodes the
// response into a final message or a tool-call batch.
func (c *OpenAIClient) Call(ctx context.Context, req *Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: encodeMessages(req.Messages),
		Tools:    encodeTools(req.Tools),
	}
	if req.Reasoning != "" {
		chatReq.ReasoningEffort = req.Reasoning
	} else if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	resp, err := c.api.CreateChatCompletion(callCtx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &Response{Kind: KindFinal}, nil
	}
	return decodeChoice(resp.Choices[0]), nil
}

func encodeMessages(msgs []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == models.RoleTool {
			cm.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func encodeTools(specs []ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Schema,
			},
		})
	}
	return out
}

func decodeChoice(choice openai.ChatCompletionChoice) *Response {
	msg := choice.Message
	if len(msg.ToolCalls) == 0 {
		return &Response{Kind: KindFinal, Text: msg.Content}
	}
	calls := make([]models.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args := tc.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		calls = append(calls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	return &Response{Kind: KindToolCalls, Calls: calls}
}
