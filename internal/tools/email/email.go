// Package email implements the email tool: SMTP send with strict
// recipient validation and credential scrubbing in error output.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"regexp"
	"strings"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// addressPattern is deliberately conservative: no whitespace, exactly
// one @, non-empty domain containing a dot.
var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type params struct {
	Operation string `json:"operation"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CC        string `json:"cc,omitempty"`
	BCC       string `json:"bcc,omitempty"`
}

// Sender delivers a composed message; the default uses net/smtp.
// Tests swap in a recorder.
type Sender func(cfg config.EmailConfig, from string, to []string, msg []byte) error

// Tool is the email executor.
type Tool struct {
	send Sender
}

// New creates the email tool with the default SMTP sender.
func New() *Tool { return &Tool{send: smtpSend} }

// NewWithSender creates the tool with a custom sender.
func NewWithSender(send Sender) *Tool { return &Tool{send: send} }

func (t *Tool) Name() string { return "email" }

func (t *Tool) Description() string {
	return "Send an email through the configured account. Multiple recipients are comma separated."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["send"]},
			"to": {"type": "string", "description": "Recipients, comma separated"},
			"subject": {"type": "string"},
			"body": {"type": "string"},
			"cc": {"type": "string"},
			"bcc": {"type": "string"}
		},
		"required": ["operation", "to", "subject", "body"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsEmailEnabled() }

func (t *Tool) Execute(_ context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	if p.Operation != "send" {
		return models.Fail(models.FailureValidation, fmt.Sprintf("unknown operation %q", p.Operation)), nil
	}

	cfg := tc.Snapshot.Config().Tools.Email
	if cfg.SMTPHost == "" || cfg.Username == "" {
		return models.Fail(models.FailureDisabled, "email account is not configured"), nil
	}

	to, err := splitAddresses(p.To, true)
	if err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	cc, err := splitAddresses(p.CC, false)
	if err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	bcc, err := splitAddresses(p.BCC, false)
	if err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}

	msg := composeMessage(cfg.Username, to, cc, p.Subject, p.Body)
	recipients := append(append(append([]string{}, to...), cc...), bcc...)

	if err := t.send(cfg, cfg.Username, recipients, msg); err != nil {
		return models.Fail(models.FailureUpstreamError,
			"send failed: "+scrub(err.Error(), cfg.Username, cfg.Password)), nil
	}
	return models.OK(fmt.Sprintf("Email sent to %s", strings.Join(to, ", "))), nil
}

// splitAddresses splits a comma-separated list and validates every
// entry. Blank entries in optional lists are skipped, not validated.
func splitAddresses(list string, required bool) ([]string, error) {
	var out []string
	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if !addressPattern.MatchString(addr) {
			return nil, fmt.Errorf("invalid email address %q", addr)
		}
		out = append(out, addr)
	}
	if required && len(out) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	return out, nil
}

func composeMessage(from string, to, cc []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	if len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// scrub masks the configured credentials in upstream error text.
func scrub(text, username, password string) string {
	if username != "" {
		text = strings.ReplaceAll(text, username, "***")
	}
	if password != "" {
		text = strings.ReplaceAll(text, password, "***")
	}
	return text
}

func smtpSend(cfg config.EmailConfig, from string, to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	return smtp.SendMail(addr, auth, from, to, msg)
}
