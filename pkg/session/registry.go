package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
)

// DefaultTTL is the sliding inactivity timeout for upload sessions.
const DefaultTTL = 5 * time.Minute

// ErrSessionNotFound indicates the session does not exist (never created,
// already committed, aborted, or expired).
var ErrSessionNotFound = errors.New("session not found")

// Registry owns all live upload sessions and their temp directories.
//
// All registry-level mutations are serialized under one mutex; per-session
// state (TTL bumps, root hash assignment) takes the session's own lock so a
// streaming upload does not contend with unrelated sessions.
//
// A session's expiry timer fires Destroy. Destroy and Finalize both take
// the registry lock, so a commit's merge phase and a timer-fired teardown
// cannot interleave: exactly one of them wins.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	root     string
	ttl      time.Duration
	closed   bool
	onExpire func(id string)
}

// NewRegistry creates a session registry. Temp directories are created
// under root; a zero ttl defaults to DefaultTTL.
func NewRegistry(root string, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		root:     root,
		ttl:      ttl,
	}
}

// Create opens a new session for a store: fresh UUID v4, exclusive temp
// directory, armed expiry timer.
func (r *Registry) Create(storeID string) (*Session, error) {
	id := uuid.NewString()
	tmpDir := filepath.Join(r.root, id)
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &Session{
		id:      id,
		storeID: storeID,
		tmpDir:  tmpDir,
		created: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		os.RemoveAll(tmpDir)
		return nil, errors.New("session registry is closed")
	}
	s.timer = time.AfterFunc(r.ttl, func() {
		logger.Info("session expired", "session_id", id, "store_id", storeID)
		if r.Destroy(id) {
			r.mu.Lock()
			cb := r.onExpire
			r.mu.Unlock()
			if cb != nil {
				cb(id)
			}
		}
	})
	s.lastBump = time.Now()
	r.sessions[id] = s

	logger.Debug("session created", "session_id", id, "store_id", storeID, "tmp_dir", tmpDir)
	return s, nil
}

// Get returns the session, or ErrSessionNotFound. Non-mutating.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Bump resets the session's expiry timer to now + TTL. Called on every
// chunk observed during a PUT; re-arming is bounded to once per second.
func (r *Registry) Bump(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	now := time.Now()
	if now.Sub(s.lastBump) < minBumpInterval {
		return
	}
	s.lastBump = now
	s.timer.Stop()
	s.timer.Reset(r.ttl)
}

// OnExpire registers a callback invoked after a session is destroyed by its
// inactivity timer. Explicit destroys do not trigger it.
func (r *Registry) OnExpire(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

// Destroy tears a session down: timer cancelled, temp directory removed
// recursively, entry deleted. Idempotent, and safe to call from both the
// timer goroutine and an explicit abort. Reports whether this call removed
// the session.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	s.destroyed = true
	s.timer.Stop()
	s.mu.Unlock()

	if err := os.RemoveAll(s.tmpDir); err != nil {
		logger.Error("failed to remove session directory", "session_id", id, "error", err)
	}
	logger.Debug("session destroyed", "session_id", id, "store_id", s.storeID)
	return true
}

// Finalize runs fn for the session while holding the registry lock, then
// destroys the session regardless of fn's outcome. The lock excludes the
// expiry timer's Destroy for the duration of fn, so a commit's merge phase
// cannot race a timeout teardown.
func (r *Registry) Finalize(id string, fn func(s *Session) error) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)

	err := fn(s)
	r.mu.Unlock()

	s.mu.Lock()
	s.destroyed = true
	s.timer.Stop()
	s.mu.Unlock()

	if rmErr := os.RemoveAll(s.tmpDir); rmErr != nil {
		logger.Error("failed to remove session directory", "session_id", id, "error", rmErr)
	}
	return err
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close destroys every live session. Called on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Destroy(id)
	}
}
