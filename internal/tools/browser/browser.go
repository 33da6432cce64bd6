// Package browser implements the browser tool: fetch a page as
// markdown text, raw HTML, or a screenshot attachment.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// Per-mode output caps, with a literal truncation marker.
const (
	textCap         = 16 * 1024
	htmlCap         = 24 * 1024
	truncationSuffix = "… (truncated)"
)

const errOnlyHTTP = "Only http and https URLs are allowed"

type params struct {
	URL  string `json:"url"`
	Mode string `json:"mode,omitempty"`
}

// Tool is the browser executor.
type Tool struct {
	driver Driver
}

// New creates the browser tool over a driver.
func New(driver Driver) *Tool {
	return &Tool{driver: driver}
}

func (t *Tool) Name() string { return "browser" }

func (t *Tool) Description() string {
	return "Open a web page. Modes: text (markdown, default), html (raw), screenshot (image attachment)."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "Page to open; bare hostnames get https://"},
			"mode": {"type": "string", "enum": ["text", "html", "screenshot"]}
		},
		"required": ["url"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsBrowserEnabled() }

func (t *Tool) Execute(ctx context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}

	target, err := NormalizeURL(p.URL)
	if err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	mode := p.Mode
	if mode == "" {
		mode = "text"
	}

	timeout := time.Duration(tc.Snapshot.Config().Tools.BrowserTimeoutMS) * time.Millisecond

	switch mode {
	case "text":
		html, err := t.driver.FetchHTML(ctx, target, timeout)
		if err != nil {
			return fetchFailure(err), nil
		}
		text, err := extractMarkdown(html)
		if err != nil {
			return models.Fail(models.FailureInternalError, err.Error()), nil
		}
		return models.OK(truncate(text, textCap)), nil
	case "html":
		html, err := t.driver.FetchHTML(ctx, target, timeout)
		if err != nil {
			return fetchFailure(err), nil
		}
		return models.OK(truncate(html, htmlCap)), nil
	case "screenshot":
		shot, err := t.driver.Screenshot(ctx, target, timeout)
		if err != nil {
			return fetchFailure(err), nil
		}
		att := models.Attachment{
			Type:     models.AttachmentImage,
			Filename: "screenshot.png",
			MimeType: "image/png",
			Bytes:    shot,
		}
		result := models.OK(fmt.Sprintf("Captured screenshot of %s (%d bytes)", target, len(shot)))
		return result.WithData(agent.DataAttachments, []models.Attachment{att}), nil
	default:
		return models.Fail(models.FailureValidation, fmt.Sprintf("unknown mode %q", mode)), nil
	}
}

// NormalizeURL enforces the URL policy: http/https only, with https://
// prepended to bare hostnames.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		candidate := "https://" + raw
		u, err = url.Parse(candidate)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid url %q", raw)
		}
		return candidate, nil
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return "", fmt.Errorf("invalid url %q", raw)
		}
		return raw, nil
	default:
		return "", fmt.Errorf("%s", errOnlyHTTP)
	}
}

func fetchFailure(err error) *models.ToolResult {
	if strings.Contains(err.Error(), "Timeout") || strings.Contains(err.Error(), "timed out") {
		return models.Fail(models.FailureTimeout, err.Error())
	}
	return models.Fail(models.FailureUpstreamError, err.Error())
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + truncationSuffix
}
