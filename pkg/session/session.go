// Package session manages upload sessions: the server-side context that
// accumulates the files of one pending snapshot before atomic publication.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/DIG-Network/dig-propagation-server/pkg/merkle"
)

// ErrRootHashSet is returned when a session's root hash is assigned twice.
var ErrRootHashSet = errors.New("session root hash already set")

// minBumpInterval bounds how often a streaming upload can re-arm the expiry
// timer. Without the bound every streamed chunk would cancel and recreate
// the timer.
const minBumpInterval = time.Second

// Session is one upload in progress. It owns its temp directory exclusively;
// the registry deletes the directory when the session ends, whichever way it
// ends.
type Session struct {
	id      string
	storeID string
	tmpDir  string
	created time.Time

	mu         sync.Mutex
	rootHash   string
	commitment *merkle.Commitment
	timer      *time.Timer
	lastBump   time.Time
	destroyed  bool
}

// ID returns the session's UUID.
func (s *Session) ID() string {
	return s.id
}

// StoreID returns the store this session uploads into.
func (s *Session) StoreID() string {
	return s.storeID
}

// TmpDir returns the session's exclusive staging directory.
func (s *Session) TmpDir() string {
	return s.tmpDir
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.created
}

// SetCommitment assigns the session's accepted root commitment. The
// assignment happens exactly once, after the first-phase .dat is verified.
func (s *Session) SetCommitment(rootHash string, c *merkle.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootHash != "" {
		return ErrRootHashSet
	}
	s.rootHash = rootHash
	s.commitment = c
	return nil
}

// RootHash returns the accepted root hash, or "" before the first phase
// completes.
func (s *Session) RootHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootHash
}

// Commitment returns the accepted commitment document, or nil before the
// first phase completes.
func (s *Session) Commitment() *merkle.Commitment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitment
}
