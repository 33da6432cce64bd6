package email

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

type recorded struct {
	from string
	to   []string
	msg  string
}

func testContext(t *testing.T) *agent.Context {
	t.Helper()
	cfg := config.Default()
	cfg.Tools.EmailEnabled = true
	cfg.Tools.Email = config.EmailConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		Username: "agent@example.com",
		Password: "hunter2",
	}
	snap := config.NewSnapshot(cfg)
	sess := &models.Session{ID: "s", ChannelType: "cli", ChatID: "1"}
	return agent.NewContext(sess, models.Preferences{}, snap, time.Now())
}

func TestSendComposesMessage(t *testing.T) {
	var got recorded
	tool := NewWithSender(func(_ config.EmailConfig, from string, to []string, msg []byte) error {
		got = recorded{from: from, to: to, msg: string(msg)}
		return nil
	})

	res, err := tool.Execute(context.Background(), testContext(t), json.RawMessage(
		`{"operation":"send","to":"a@example.com, b@example.com","cc":"c@example.com","subject":"hi","body":"hello"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	if got.from != "agent@example.com" {
		t.Errorf("from = %q", got.from)
	}
	if len(got.to) != 3 {
		t.Errorf("recipients = %v", got.to)
	}
	if !strings.Contains(got.msg, "Subject: hi") || !strings.Contains(got.msg, "hello") {
		t.Errorf("message = %q", got.msg)
	}
	if !strings.Contains(got.msg, "Cc: c@example.com") {
		t.Errorf("cc header missing: %q", got.msg)
	}
}

func TestAddressValidation(t *testing.T) {
	tests := []struct {
		name string
		args string
		ok   bool
	}{
		{"valid single", `{"operation":"send","to":"a@example.com","subject":"s","body":"b"}`, true},
		{"two at signs", `{"operation":"send","to":"a@@example.com","subject":"s","body":"b"}`, false},
		{"no domain dot", `{"operation":"send","to":"a@example","subject":"s","body":"b"}`, false},
		{"whitespace inside", `{"operation":"send","to":"a b@example.com","subject":"s","body":"b"}`, false},
		{"empty to", `{"operation":"send","to":"","subject":"s","body":"b"}`, false},
		{"only commas", `{"operation":"send","to":" , ,","subject":"s","body":"b"}`, false},
		{"blank cc skipped", `{"operation":"send","to":"a@example.com","cc":" , ","subject":"s","body":"b"}`, true},
		{"bad cc rejected", `{"operation":"send","to":"a@example.com","cc":"nope","subject":"s","body":"b"}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := NewWithSender(func(config.EmailConfig, string, []string, []byte) error { return nil })
			res, err := tool.Execute(context.Background(), testContext(t), json.RawMessage(tc.args))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Success != tc.ok {
				t.Errorf("Success = %v, want %v (%s)", res.Success, tc.ok, res.Error)
			}
			if !tc.ok && res.FailureKind != models.FailureValidation {
				t.Errorf("FailureKind = %s, want VALIDATION", res.FailureKind)
			}
		})
	}
}

func TestCredentialScrubbing(t *testing.T) {
	tool := NewWithSender(func(config.EmailConfig, string, []string, []byte) error {
		return errors.New("535 auth failed for agent@example.com with password hunter2")
	})

	res, err := tool.Execute(context.Background(), testContext(t), json.RawMessage(
		`{"operation":"send","to":"a@example.com","subject":"s","body":"b"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.FailureKind != models.FailureUpstreamError {
		t.Fatalf("result = %+v", res)
	}
	if strings.Contains(res.Error, "hunter2") || strings.Contains(res.Error, "agent@example.com") {
		t.Errorf("credentials leaked: %q", res.Error)
	}
	if !strings.Contains(res.Error, "***") {
		t.Errorf("error = %q, want masked credentials", res.Error)
	}
}

func TestUnconfiguredAccount(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.EmailEnabled = true
	snap := config.NewSnapshot(cfg)
	tc := agent.NewContext(&models.Session{ID: "s"}, models.Preferences{}, snap, time.Now())

	tool := NewWithSender(func(config.EmailConfig, string, []string, []byte) error { return nil })
	res, err := tool.Execute(context.Background(), tc, json.RawMessage(
		`{"operation":"send","to":"a@example.com","subject":"s","body":"b"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.FailureKind != models.FailureDisabled {
		t.Errorf("result = %+v, want DISABLED", res)
	}
}
