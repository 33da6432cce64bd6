package plantool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/plan"
	"github.com/tessel-ai/tessel/pkg/models"
)

func testContext(t *testing.T) *agent.Context {
	t.Helper()
	snap := config.NewSnapshot(config.Default())
	return agent.NewContext(&models.Session{ID: "s1"}, models.Preferences{}, snap, time.Now())
}

func toolByName(t *testing.T, svc *plan.Service, name string) agent.Tool {
	t.Helper()
	for _, tool := range Tools(svc) {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("no tool %q", name)
	return nil
}

func TestDeniedOutsidePlanMode(t *testing.T) {
	svc := plan.NewService(nil)
	tc := testContext(t)

	for _, name := range []string{"plan_get", "plan_set_content", "plan_finalize"} {
		t.Run(name, func(t *testing.T) {
			tool := toolByName(t, svc, name)
			res, err := tool.Execute(context.Background(), tc, json.RawMessage(`{"content":"x"}`))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Success || res.FailureKind != models.FailurePolicyDenied {
				t.Errorf("result = %+v, want POLICY_DENIED", res)
			}
		})
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	svc := plan.NewService(nil)
	tc := testContext(t)
	svc.Activate(tc.Key())

	get := toolByName(t, svc, "plan_get")
	res, err := get.Execute(context.Background(), tc, json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Output != "The plan is empty." {
		t.Errorf("empty plan = %+v", res)
	}

	set := toolByName(t, svc, "plan_set_content")
	res, err = set.Execute(context.Background(), tc, json.RawMessage(`{"content":"# Step 1"}`))
	if err != nil || !res.Success {
		t.Fatalf("set = %+v, %v", res, err)
	}

	res, err = get.Execute(context.Background(), tc, json.RawMessage(`{}`))
	if err != nil || res.Output != "# Step 1" {
		t.Errorf("get = %+v, %v", res, err)
	}
}

func TestFinalizeLeavesPlanMode(t *testing.T) {
	svc := plan.NewService(nil)
	tc := testContext(t)
	svc.Activate(tc.Key())
	svc.SetContent(tc.Key(), "# Plan")

	fin := toolByName(t, svc, "plan_finalize")
	res, err := fin.Execute(context.Background(), tc, json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Output != "[Plan finalized]" {
		t.Errorf("finalize = %+v", res)
	}
	if svc.IsActive(tc.Key()) {
		t.Error("plan mode still active after finalize")
	}

	res, _ = fin.Execute(context.Background(), tc, json.RawMessage(`{}`))
	if res.Success || res.FailureKind != models.FailurePolicyDenied {
		t.Errorf("second finalize = %+v, want POLICY_DENIED", res)
	}
}

func TestPlanModeIsPerContext(t *testing.T) {
	svc := plan.NewService(nil)
	snap := config.NewSnapshot(config.Default())
	a := agent.NewContext(&models.Session{ID: "a"}, models.Preferences{}, snap, time.Now())
	b := agent.NewContext(&models.Session{ID: "b"}, models.Preferences{}, snap, time.Now())
	svc.Activate(a.Key())

	get := toolByName(t, svc, "plan_get")
	if res, _ := get.Execute(context.Background(), a, json.RawMessage(`{}`)); !res.Success {
		t.Errorf("active context denied: %+v", res)
	}
	if res, _ := get.Execute(context.Background(), b, json.RawMessage(`{}`)); res.Success {
		t.Errorf("inactive context allowed: %+v", res)
	}
}
