package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Store for tests and ephemeral runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]string)}
}

func memKey(bucket, key string) string { return bucket + "\x00" + key }

// PutText stores the object.
func (m *Memory) PutText(_ context.Context, bucket, key, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = content
	return nil
}

// Get returns the object or ErrNotFound.
func (m *Memory) Get(_ context.Context, bucket, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return "", ErrNotFound
	}
	return content, nil
}

// DeleteObject removes the object if present.
func (m *Memory) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, memKey(bucket, key))
	return nil
}

// List returns keys in the bucket matching prefix.
func (m *Memory) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	marker := bucket + "\x00"
	for k := range m.objects {
		if !strings.HasPrefix(k, marker) {
			continue
		}
		key := strings.TrimPrefix(k, marker)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
