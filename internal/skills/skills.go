// Package skills loads and serves skill definitions. A skill lives in
// the storage bucket "skills" at <name>/SKILL.md: YAML front matter
// with name and description, followed by free-form content.
package skills

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tessel-ai/tessel/internal/storage"
	"github.com/tessel-ai/tessel/pkg/models"
)

// Bucket is the storage bucket holding skill documents.
const Bucket = "skills"

// NamePattern constrains skill names.
var NamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ErrNotFound is returned when a named skill does not exist.
var ErrNotFound = errors.New("skill not found")

type frontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Available   *bool  `yaml:"available"`
}

// Parse parses a SKILL.md document into a Skill.
func Parse(doc string) (*models.Skill, error) {
	rest, ok := strings.CutPrefix(doc, "---\n")
	if !ok {
		return nil, errors.New("skill document missing front matter")
	}
	head, content, ok := strings.Cut(rest, "\n---")
	if !ok {
		return nil, errors.New("skill front matter is not terminated")
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		return nil, fmt.Errorf("invalid skill front matter: %w", err)
	}
	if fm.Name == "" {
		return nil, errors.New("skill front matter missing name")
	}
	if !NamePattern.MatchString(fm.Name) {
		return nil, fmt.Errorf("skill name %q must match %s", fm.Name, NamePattern)
	}
	if fm.Description == "" {
		return nil, errors.New("skill front matter missing description")
	}
	return &models.Skill{
		Name:        fm.Name,
		Description: fm.Description,
		Content:     strings.TrimLeft(strings.TrimPrefix(content, "\n"), "\n"),
		Available:   fm.Available == nil || *fm.Available,
	}, nil
}

// Render serializes a Skill back into SKILL.md form.
func Render(s *models.Skill) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("name: " + s.Name + "\n")
	b.WriteString("description: " + s.Description + "\n")
	if !s.Available {
		b.WriteString("available: false\n")
	}
	b.WriteString("---\n")
	if s.Content != "" {
		b.WriteString("\n" + s.Content)
		if !strings.HasSuffix(s.Content, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Manager loads skills from storage and caches them.
type Manager struct {
	store storage.Store

	mu     sync.RWMutex
	skills map[string]*models.Skill
}

// NewManager creates a manager over the given store.
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store, skills: make(map[string]*models.Skill)}
}

// Refresh reloads all skills from storage. Malformed documents are
// skipped.
func (m *Manager) Refresh(ctx context.Context) error {
	keys, err := m.store.List(ctx, Bucket, "")
	if err != nil {
		return fmt.Errorf("failed to list skills: %w", err)
	}
	loaded := make(map[string]*models.Skill)
	for _, key := range keys {
		if !strings.HasSuffix(key, "/SKILL.md") {
			continue
		}
		doc, err := m.store.Get(ctx, Bucket, key)
		if err != nil {
			continue
		}
		skill, err := Parse(doc)
		if err != nil {
			continue
		}
		loaded[skill.Name] = skill
	}
	m.mu.Lock()
	m.skills = loaded
	m.mu.Unlock()
	return nil
}

// Get returns a skill by name.
func (m *Manager) Get(name string) (*models.Skill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	skill, ok := m.skills[name]
	if !ok {
		return nil, ErrNotFound
	}
	return skill, nil
}

// List returns all skills sorted by name.
func (m *Manager) List() []*models.Skill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Skill, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes a skill through to storage and the cache.
func (m *Manager) Save(ctx context.Context, skill *models.Skill) error {
	if !NamePattern.MatchString(skill.Name) {
		return fmt.Errorf("skill name %q must match %s", skill.Name, NamePattern)
	}
	if err := m.store.PutText(ctx, Bucket, skill.Name+"/SKILL.md", Render(skill)); err != nil {
		return fmt.Errorf("failed to save skill: %w", err)
	}
	m.mu.Lock()
	m.skills[skill.Name] = skill
	m.mu.Unlock()
	return nil
}
