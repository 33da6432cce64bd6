package plan

import (
	"context"
	"testing"

	"github.com/tessel-ai/tessel/internal/storage"
)

func TestPlanModeIsPerContext(t *testing.T) {
	s := NewService(nil)
	s.Activate("ctx-a")

	if !s.IsActive("ctx-a") {
		t.Error("ctx-a should be in plan mode")
	}
	if s.IsActive("ctx-b") {
		t.Error("ctx-b should not be in plan mode")
	}
}

func TestFinalize(t *testing.T) {
	store := storage.NewMemory()
	s := NewService(store)

	s.Activate("ctx-a")
	s.SetContent("ctx-a", "# Plan\n1. draft")

	out, err := s.Finalize(context.Background(), "ctx-a")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if out != FinalizedOutput {
		t.Errorf("Finalize output = %q, want %q", out, FinalizedOutput)
	}
	if s.IsActive("ctx-a") {
		t.Error("finalize should leave plan mode")
	}

	doc, err := store.Get(context.Background(), Bucket, "ctx-a/PLAN.md")
	if err != nil {
		t.Fatalf("plan document missing: %v", err)
	}
	if doc != "# Plan\n1. draft" {
		t.Errorf("stored plan = %q", doc)
	}
}

func TestFinalizeWithoutContent(t *testing.T) {
	s := NewService(storage.NewMemory())
	s.Activate("ctx-a")
	out, err := s.Finalize(context.Background(), "ctx-a")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if out != FinalizedOutput {
		t.Errorf("Finalize output = %q", out)
	}
}
