package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// intentTTL is how long a prepared update stays confirmable.
const intentTTL = 5 * time.Minute

var (
	// ErrNoIntent is returned when apply runs without a prepared intent.
	ErrNoIntent = errors.New("no update intent prepared")
	// ErrBadToken is returned on a confirm token mismatch.
	ErrBadToken = errors.New("confirm token does not match")
	// ErrIntentExpired is returned when the intent TTL has passed.
	ErrIntentExpired = errors.New("update intent expired")
	// ErrNothingToRollBack is returned when no prior version exists.
	ErrNothingToRollBack = errors.New("no previous version to roll back to")
)

// Checker reports the latest available version.
type Checker func(ctx context.Context) (version string, err error)

// UpdateIntent is a prepared update awaiting confirmation.
type UpdateIntent struct {
	Version      string    `json:"version"`
	ConfirmToken string    `json:"confirm_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// HistoryEntry records one applied or rolled-back update.
type HistoryEntry struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Action    string    `json:"action"` // apply, rollback
	AppliedAt time.Time `json:"applied_at"`
}

// Updater is the check/prepare/apply/rollback state machine. Applying
// here records the version transition; the process-level swap is the
// host's concern.
type Updater struct {
	check Checker
	now   func() time.Time

	mu       sync.Mutex
	current  string
	previous string
	intent   *UpdateIntent
	history  []HistoryEntry
}

// NewUpdater creates an updater at the given running version. The
// checker may be nil, in which case Check reports the current version.
func NewUpdater(current string, check Checker) *Updater {
	return &Updater{current: current, check: check, now: time.Now}
}

// WithClock injects a clock for tests.
func (u *Updater) WithClock(now func() time.Time) *Updater {
	u.now = now
	return u
}

// Current returns the running version.
func (u *Updater) Current() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current
}

// Check returns the latest available version and whether it differs
// from the running one.
func (u *Updater) Check(ctx context.Context) (version string, updateAvailable bool, err error) {
	if u.check == nil {
		return u.Current(), false, nil
	}
	latest, err := u.check(ctx)
	if err != nil {
		return "", false, fmt.Errorf("update check failed: %w", err)
	}
	return latest, latest != u.Current(), nil
}

// Prepare stages an update to the given version and returns the intent
// the caller must confirm. A new Prepare replaces any pending intent.
func (u *Updater) Prepare(version string) UpdateIntent {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.intent = &UpdateIntent{
		Version:      version,
		ConfirmToken: uuid.NewString(),
		ExpiresAt:    u.now().Add(intentTTL),
	}
	return *u.intent
}

// Intent returns the pending intent, if any.
func (u *Updater) Intent() *UpdateIntent {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.intent == nil {
		return nil
	}
	cp := *u.intent
	return &cp
}

// Apply confirms a prepared update. The token must match the pending
// intent and the intent must not have expired.
func (u *Updater) Apply(token string) (HistoryEntry, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.intent == nil {
		return HistoryEntry{}, ErrNoIntent
	}
	if token != u.intent.ConfirmToken {
		return HistoryEntry{}, ErrBadToken
	}
	if u.now().After(u.intent.ExpiresAt) {
		u.intent = nil
		return HistoryEntry{}, ErrIntentExpired
	}

	entry := HistoryEntry{
		From:      u.current,
		To:        u.intent.Version,
		Action:    "apply",
		AppliedAt: u.now(),
	}
	u.previous = u.current
	u.current = u.intent.Version
	u.intent = nil
	u.history = append(u.history, entry)
	return entry, nil
}

// Rollback reverts to the previously running version.
func (u *Updater) Rollback() (HistoryEntry, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.previous == "" {
		return HistoryEntry{}, ErrNothingToRollBack
	}
	entry := HistoryEntry{
		From:      u.current,
		To:        u.previous,
		Action:    "rollback",
		AppliedAt: u.now(),
	}
	u.current, u.previous = u.previous, ""
	u.history = append(u.history, entry)
	return entry, nil
}

// History returns applied transitions oldest first.
func (u *Updater) History() []HistoryEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]HistoryEntry(nil), u.history...)
}
