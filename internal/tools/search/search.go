// Package search implements the brave_search tool against the Brave
// web search API, with bounded retry on rate limiting.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

const (
	defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

	maxRetries   = 3
	retryBackoff = 700 * time.Millisecond

	minCount     = 1
	maxCount     = 20
	defaultCount = 5
)

// User-facing strings for upstream failures.
const (
	msgRateLimited = "The search service is rate limiting requests. Please try again in a moment."
	msgUnavailable = "The search service is currently unavailable."
)

type params struct {
	Query string `json:"query"`
	Count int    `json:"count,omitempty"`
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Tool is the web search executor.
type Tool struct {
	endpoint string
	client   *http.Client
	sleep    func(time.Duration)
}

// Option configures the tool.
type Option func(*Tool)

// WithEndpoint overrides the API endpoint; tests point it at a local
// server.
func WithEndpoint(endpoint string) Option {
	return func(t *Tool) { t.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// WithSleep overrides the backoff sleep for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(t *Tool) { t.sleep = sleep }
}

// New creates the search tool.
func New(opts ...Option) *Tool {
	t := &Tool{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string { return "brave_search" }

func (t *Tool) Description() string {
	return "Search the web. Returns titles, URLs, and snippets for the top results."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"count": {"type": "integer", "description": "Number of results, 1 to 20"}
		},
		"required": ["query"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsSearchEnabled() }

func (t *Tool) Execute(ctx context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	if strings.TrimSpace(p.Query) == "" {
		return models.Fail(models.FailureValidation, "query is required"), nil
	}
	apiKey := tc.Snapshot.Config().Tools.BraveSearchAPIKey
	if apiKey == "" {
		return models.Fail(models.FailureDisabled, "search API key is not configured"), nil
	}

	count := clampCount(p.Count)
	body, result := t.fetch(ctx, apiKey, p.Query, count)
	if result != nil {
		return result, nil
	}

	var decoded braveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return models.Fail(models.FailureUpstreamError, msgUnavailable), nil
	}
	return models.OK(formatResults(p.Query, decoded)), nil
}

// fetch performs the request with up to maxRetries retries on 429.
// Non-429 upstream failures do not retry.
func (t *Tool) fetch(ctx context.Context, apiKey, query string, count int) ([]byte, *models.ToolResult) {
	u := t.endpoint + "?q=" + url.QueryEscape(query) + "&count=" + strconv.Itoa(count)

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, models.Fail(models.FailureInternalError, err.Error())
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", apiKey)

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, models.Fail(models.FailureUpstreamError, msgUnavailable)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, models.Fail(models.FailureUpstreamError, msgUnavailable)
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if attempt >= maxRetries {
				return nil, models.Fail(models.FailureRateLimited, msgRateLimited)
			}
			t.sleep(retryBackoff * time.Duration(attempt+1))
		default:
			resp.Body.Close()
			return nil, models.Fail(models.FailureUpstreamError, msgUnavailable)
		}
	}
}

func formatResults(query string, decoded braveResponse) string {
	results := decoded.Web.Results
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&b, "   %s\n", r.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func clampCount(count int) int {
	if count == 0 {
		return defaultCount
	}
	if count < minCount {
		return minCount
	}
	if count > maxCount {
		return maxCount
	}
	return count
}
