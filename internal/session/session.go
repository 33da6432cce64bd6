// Package session holds the in-memory session store and the
// per-session turn lock that keeps at most one turn in flight per
// conversation.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessel-ai/tessel/pkg/models"
)

// Store keeps sessions keyed by (channel, chatID). Sessions are
// created lazily on first access and never destroyed; durable
// persistence is the channel adapter's concern.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	locks    map[string]*turnLock
	now      func() time.Time
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Store.
type Option func(*Store)

// WithNow injects a clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*models.Session),
		locks:    make(map[string]*turnLock),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(channelType, chatID string) string {
	return channelType + "\x00" + chatID
}

// GetOrCreate returns the session for a (channel, chat) pair, creating
// it on first access.
func (s *Store) GetOrCreate(channelType, chatID string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(channelType, chatID)
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	now := s.now()
	sess := &models.Session{
		ID:          uuid.NewString(),
		ChannelType: channelType,
		ChatID:      chatID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.sessions[key] = sess
	return sess
}

// Get returns an existing session, or nil.
func (s *Store) Get(channelType, chatID string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey(channelType, chatID)]
}

// Len reports the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// LockTurn serializes turns on one session: it blocks until no other
// turn is running for the pair and returns the unlock function. The
// lock entry is reference counted so idle entries are reclaimed.
func (s *Store) LockTurn(channelType, chatID string) (unlock func()) {
	key := sessionKey(channelType, chatID)

	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &turnLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
