// Package plan implements the plan-mode state machine that gates the
// plan_* tools. Plan mode is per agent context, never global.
package plan

import (
	"context"
	"sync"

	"github.com/tessel-ai/tessel/internal/storage"
)

// FinalizedOutput is the literal tool output of a successful finalize.
const FinalizedOutput = "[Plan finalized]"

// Bucket is the storage bucket holding finalized plan documents.
const Bucket = "plans"

// Service tracks plan mode per context key and stores plan content.
type Service struct {
	store storage.Store

	mu      sync.Mutex
	active  map[string]bool
	content map[string]string
}

// NewService creates a plan service. The store may be nil, in which
// case finalized plans are not persisted.
func NewService(store storage.Store) *Service {
	return &Service{
		store:   store,
		active:  make(map[string]bool),
		content: make(map[string]string),
	}
}

// Activate enters plan mode for the given context key.
func (s *Service) Activate(contextKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[contextKey] = true
}

// IsActive reports whether plan mode is active for the context key.
func (s *Service) IsActive(contextKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[contextKey]
}

// Content returns the current plan markdown for the context key.
func (s *Service) Content(contextKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content[contextKey]
}

// SetContent replaces the plan markdown for the context key.
func (s *Service) SetContent(contextKey, markdown string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[contextKey] = markdown
}

// Finalize leaves plan mode, persists the plan document, and returns
// the literal finalized output.
func (s *Service) Finalize(ctx context.Context, contextKey string) (string, error) {
	s.mu.Lock()
	markdown := s.content[contextKey]
	delete(s.active, contextKey)
	delete(s.content, contextKey)
	s.mu.Unlock()

	if s.store != nil && markdown != "" {
		if err := s.store.PutText(ctx, Bucket, contextKey+"/PLAN.md", markdown); err != nil {
			return "", err
		}
	}
	return FinalizedOutput, nil
}
