package datetime

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	}
}

func testContext(t *testing.T, prefs models.Preferences) *agent.Context {
	t.Helper()
	snap := config.NewSnapshot(config.Default())
	return agent.NewContext(&models.Session{ID: "s"}, prefs, snap, time.Now())
}

func TestExplicitTimezone(t *testing.T) {
	tool := NewWithClock(fixedClock())
	tc := testContext(t, models.Preferences{})

	res, err := tool.Execute(context.Background(), tc, json.RawMessage(`{"timezone":"Asia/Tokyo"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Data["timezone"] != "Asia/Tokyo" {
		t.Errorf("timezone = %v", res.Data["timezone"])
	}
	// 12:00 UTC is 21:00 in Tokyo.
	if !strings.Contains(res.Output, "21:00:00") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestPreferenceTimezoneDefault(t *testing.T) {
	tool := NewWithClock(fixedClock())
	tc := testContext(t, models.Preferences{Timezone: "America/New_York"})

	res, err := tool.Execute(context.Background(), tc, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Data["timezone"] != "America/New_York" {
		t.Errorf("timezone = %v", res.Data["timezone"])
	}
}

func TestUTCFallback(t *testing.T) {
	tool := NewWithClock(fixedClock())
	tc := testContext(t, models.Preferences{})

	res, err := tool.Execute(context.Background(), tc, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Data["timezone"] != "UTC" {
		t.Errorf("timezone = %v", res.Data["timezone"])
	}
	if !strings.Contains(res.Output, "12:00:00") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestUnknownTimezone(t *testing.T) {
	tool := NewWithClock(fixedClock())
	tc := testContext(t, models.Preferences{})

	res, err := tool.Execute(context.Background(), tc, json.RawMessage(`{"timezone":"Mars/Olympus"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.FailureKind != models.FailureValidation {
		t.Errorf("result = %+v, want VALIDATION", res)
	}
}
