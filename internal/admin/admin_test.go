package admin

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/config"
)

func newService(t *testing.T) (*Service, *config.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.Providers = config.ProvidersConfig{
		"openai": {APIKey: "sk-secret", APIKeyPresent: true, RequestTimeoutSeconds: 300},
	}
	cfg.Tools.BraveSearchAPIKey = "brave-secret"
	manager := config.NewManager(cfg, "", nil)
	return NewService(manager), manager
}

func TestGetSectionRedactsSecrets(t *testing.T) {
	svc, _ := newService(t)

	raw, err := svc.GetSection("providers")
	if err != nil {
		t.Fatalf("GetSection: %v", err)
	}
	if strings.Contains(string(raw), "sk-secret") {
		t.Errorf("secret leaked: %s", raw)
	}
	if !strings.Contains(string(raw), `"api_key_present":true`) {
		t.Errorf("presence flag missing: %s", raw)
	}

	raw, err = svc.GetSection("tools")
	if err != nil {
		t.Fatalf("GetSection(tools): %v", err)
	}
	if strings.Contains(string(raw), "brave-secret") {
		t.Errorf("search key leaked: %s", raw)
	}
}

func TestGetSectionUnknown(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.GetSection("nope"); err == nil {
		t.Error("unknown section accepted")
	}
}

func TestPutSectionIdempotent(t *testing.T) {
	svc, manager := newService(t)
	payload := json.RawMessage(`{"max_llm_calls": 50, "max_tool_executions": 100, "deadline": "PT30M"}`)

	for i := 0; i < 2; i++ {
		if err := svc.PutSection("turn", payload); err != nil {
			t.Fatalf("PutSection #%d: %v", i+1, err)
		}
	}
	got := manager.Snapshot().Config().Turn
	if got.MaxLLMCalls != 50 || got.MaxToolExecutions != 100 || got.Deadline != "PT30M" {
		t.Errorf("turn = %+v", got)
	}
}

func TestPutSectionRejectsInvalid(t *testing.T) {
	svc, manager := newService(t)
	before := manager.Snapshot().Config().Turn.Deadline

	err := svc.PutSection("turn", json.RawMessage(`{"deadline": "sometime"}`))
	if err == nil {
		t.Fatal("invalid deadline accepted")
	}
	if got := manager.Snapshot().Config().Turn.Deadline; got != before {
		t.Errorf("deadline changed to %q despite rejection", got)
	}
}

func TestPutSectionKeepsStoredSecrets(t *testing.T) {
	svc, manager := newService(t)

	// A GET-modify-PUT cycle sends back the redacted (empty) key.
	err := svc.PutSection("tools", json.RawMessage(`{"search_enabled": true, "brave_search_api_key": ""}`))
	if err != nil {
		t.Fatalf("PutSection: %v", err)
	}
	cfg := manager.Snapshot().Config()
	if cfg.Tools.BraveSearchAPIKey != "brave-secret" {
		t.Errorf("stored key wiped: %q", cfg.Tools.BraveSearchAPIKey)
	}
	if !cfg.Tools.SearchEnabled {
		t.Error("write not applied")
	}
}

func TestProviderLifecycle(t *testing.T) {
	svc, manager := newService(t)

	if err := svc.PutProvider("groq", ProviderInput{APIKey: "gk", BaseURL: "https://api.groq.com/openai/v1"}); err != nil {
		t.Fatalf("PutProvider: %v", err)
	}
	views := svc.ListProviders()
	if len(views) != 2 {
		t.Fatalf("providers = %+v", views)
	}
	var groq ProviderView
	for _, v := range views {
		if v.Name == "groq" {
			groq = v
		}
	}
	if !groq.APIKeyPresent || groq.RequestTimeoutSeconds != 300 {
		t.Errorf("groq = %+v", groq)
	}

	// Update without a key keeps the stored one.
	if err := svc.PutProvider("groq", ProviderInput{RequestTimeoutSeconds: 60}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if p := manager.Snapshot().Config().Providers["groq"]; p.APIKey != "gk" || p.RequestTimeoutSeconds != 60 {
		t.Errorf("groq after update = %+v", p)
	}

	if err := svc.RemoveProvider("groq"); err != nil {
		t.Fatalf("RemoveProvider: %v", err)
	}
	if err := svc.RemoveProvider("groq"); err == nil {
		t.Error("second remove accepted")
	}
}

func TestPutProviderRejectsBadName(t *testing.T) {
	svc, _ := newService(t)
	if err := svc.PutProvider("Bad Name", ProviderInput{APIKey: "k"}); err == nil {
		t.Error("invalid provider name accepted")
	}
}

func TestUpdateApplyFlow(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	u := NewUpdater("1.0.0", func(context.Context) (string, error) { return "1.1.0", nil }).
		WithClock(func() time.Time { return now })

	version, available, err := u.Check(context.Background())
	if err != nil || !available || version != "1.1.0" {
		t.Fatalf("Check = %q, %v, %v", version, available, err)
	}

	intent := u.Prepare(version)
	if intent.ConfirmToken == "" || !intent.ExpiresAt.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("intent = %+v", intent)
	}

	if _, err := u.Apply("wrong"); !errors.Is(err, ErrBadToken) {
		t.Errorf("Apply(wrong) = %v", err)
	}

	entry, err := u.Apply(intent.ConfirmToken)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if entry.From != "1.0.0" || entry.To != "1.1.0" || entry.Action != "apply" {
		t.Errorf("entry = %+v", entry)
	}
	if u.Current() != "1.1.0" {
		t.Errorf("current = %q", u.Current())
	}
	if u.Intent() != nil {
		t.Error("intent survived apply")
	}
}

func TestUpdateIntentExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	u := NewUpdater("1.0.0", nil).WithClock(func() time.Time { return now })

	intent := u.Prepare("1.1.0")
	now = now.Add(6 * time.Minute)

	if _, err := u.Apply(intent.ConfirmToken); !errors.Is(err, ErrIntentExpired) {
		t.Errorf("Apply after expiry = %v", err)
	}
	if _, err := u.Apply(intent.ConfirmToken); !errors.Is(err, ErrNoIntent) {
		t.Errorf("Apply with cleared intent = %v", err)
	}
}

func TestUpdateRollback(t *testing.T) {
	u := NewUpdater("1.0.0", nil)

	if _, err := u.Rollback(); !errors.Is(err, ErrNothingToRollBack) {
		t.Errorf("Rollback without history = %v", err)
	}

	intent := u.Prepare("1.1.0")
	if _, err := u.Apply(intent.ConfirmToken); err != nil {
		t.Fatal(err)
	}
	entry, err := u.Rollback()
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if entry.From != "1.1.0" || entry.To != "1.0.0" || entry.Action != "rollback" {
		t.Errorf("entry = %+v", entry)
	}
	if u.Current() != "1.0.0" {
		t.Errorf("current = %q", u.Current())
	}
	if got := u.History(); len(got) != 2 {
		t.Errorf("history = %+v", got)
	}
}

func TestHealthProbes(t *testing.T) {
	svc, _ := newService(t)

	if st := svc.Ping(); !st.OK || st.Message != "pong" {
		t.Errorf("Ping = %+v", st)
	}
	if st := svc.BrowserHealth(context.Background(), nil); st.OK {
		t.Errorf("nil probe = %+v", st)
	}
	if st := svc.BrowserHealth(context.Background(), func(context.Context) error { return nil }); !st.OK {
		t.Errorf("healthy probe = %+v", st)
	}
	if st := svc.BrowserHealth(context.Background(), func(context.Context) error { return errors.New("no chromium") }); st.OK || st.Message != "no chromium" {
		t.Errorf("failing probe = %+v", st)
	}
}
