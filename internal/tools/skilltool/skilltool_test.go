package skilltool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/skills"
	"github.com/tessel-ai/tessel/internal/storage"
	"github.com/tessel-ai/tessel/pkg/models"
)

func newTool(t *testing.T) *Tool {
	t.Helper()
	m := skills.NewManager(storage.NewMemory())
	ctx := context.Background()
	if err := m.Save(ctx, &models.Skill{Name: "research", Description: "Deep research", Available: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, &models.Skill{Name: "drafts", Description: "Unfinished", Available: false}); err != nil {
		t.Fatal(err)
	}
	return New(m)
}

func testContext(t *testing.T) *agent.Context {
	t.Helper()
	snap := config.NewSnapshot(config.Default())
	return agent.NewContext(&models.Session{ID: "s"}, models.Preferences{}, snap, time.Now())
}

func TestTransitionRecordsRequest(t *testing.T) {
	tool := newTool(t)
	tc := testContext(t)

	res, err := tool.Execute(context.Background(), tc, json.RawMessage(`{"skill":"research","reason":"needs sources"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	req := tc.SkillTransition()
	if req == nil || req.Skill != "research" || req.Reason != "needs sources" {
		t.Errorf("transition = %+v", req)
	}
}

func TestTransitionRejections(t *testing.T) {
	tool := newTool(t)

	tests := []struct {
		name string
		args string
		kind models.FailureKind
	}{
		{"unknown skill", `{"skill":"nope"}`, models.FailureNotFound},
		{"unavailable skill", `{"skill":"drafts"}`, models.FailureValidation},
		{"blank skill", `{"skill":" "}`, models.FailureValidation},
	}
	for _, tcase := range tests {
		t.Run(tcase.name, func(t *testing.T) {
			tc := testContext(t)
			res, err := tool.Execute(context.Background(), tc, json.RawMessage(tcase.args))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Success || res.FailureKind != tcase.kind {
				t.Errorf("result = %+v, want %s", res, tcase.kind)
			}
			if tc.SkillTransition() != nil {
				t.Error("transition recorded despite rejection")
			}
		})
	}
}

func TestNilContext(t *testing.T) {
	tool := newTool(t)
	res, err := tool.Execute(context.Background(), nil, json.RawMessage(`{"skill":"research"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.FailureKind != models.FailureInternalError || res.Error != "No agent context" {
		t.Errorf("result = %+v", res)
	}
}
