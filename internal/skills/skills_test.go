package skills

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tessel-ai/tessel/internal/storage"
	"github.com/tessel-ai/tessel/pkg/models"
)

const sampleSkill = `---
name: research
description: Deep research over web sources
---

Use web search first, then fetch the top results.
`

func TestParse(t *testing.T) {
	skill, err := Parse(sampleSkill)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if skill.Name != "research" {
		t.Errorf("Name = %q", skill.Name)
	}
	if skill.Description != "Deep research over web sources" {
		t.Errorf("Description = %q", skill.Description)
	}
	if !strings.Contains(skill.Content, "web search first") {
		t.Errorf("Content = %q", skill.Content)
	}
	if !skill.Available {
		t.Error("Available should default to true")
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no front matter", "just markdown"},
		{"unterminated", "---\nname: x\ndescription: y\n"},
		{"missing name", "---\ndescription: y\n---\n"},
		{"missing description", "---\nname: x\n---\n"},
		{"bad name", "---\nname: Bad Name\ndescription: y\n---\n"},
		{"uppercase name", "---\nname: Research\ndescription: y\n---\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.doc); err == nil {
				t.Error("Parse should fail")
			}
		})
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	in := &models.Skill{
		Name:        "ops_runbook",
		Description: "Operate the fleet",
		Content:     "Check dashboards before acting.",
		Available:   true,
	}
	out, err := Parse(Render(in))
	if err != nil {
		t.Fatalf("Parse(Render): %v", err)
	}
	if out.Name != in.Name || out.Description != in.Description {
		t.Errorf("round trip changed identity: %+v", out)
	}
	if strings.TrimSpace(out.Content) != in.Content {
		t.Errorf("Content = %q, want %q", out.Content, in.Content)
	}
}

func TestManagerRefreshAndGet(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	if err := store.PutText(ctx, Bucket, "research/SKILL.md", sampleSkill); err != nil {
		t.Fatal(err)
	}
	// Malformed documents are skipped, not fatal.
	if err := store.PutText(ctx, Bucket, "broken/SKILL.md", "no front matter"); err != nil {
		t.Fatal(err)
	}

	m := NewManager(store)
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := m.Get("research"); err != nil {
		t.Errorf("Get(research): %v", err)
	}
	if _, err := m.Get("broken"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(broken) = %v, want ErrNotFound", err)
	}
	if got := len(m.List()); got != 1 {
		t.Errorf("List() returned %d skills, want 1", got)
	}
}

func TestManagerSave(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewManager(store)

	skill := &models.Skill{Name: "writer", Description: "Writes prose", Available: true}
	if err := m.Save(ctx, skill); err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc, err := store.Get(ctx, Bucket, "writer/SKILL.md")
	if err != nil {
		t.Fatalf("stored document missing: %v", err)
	}
	if !strings.HasPrefix(doc, "---\nname: writer\n") {
		t.Errorf("stored document = %q", doc)
	}

	if err := m.Save(ctx, &models.Skill{Name: "Bad Name", Description: "x"}); err == nil {
		t.Error("Save with invalid name should fail")
	}
}
