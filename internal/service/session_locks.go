package service

import (
	"sync"
)

// SessionLockSet serializes every mutation of a user's session, ledger and
// challenges. The timeout supervisor and a concurrent user request may target
// the same session at once; whoever takes the lock first wins and the loser
// re-reads state before acting, so the ledger can never double-close or
// double-open an entry.
type SessionLockSet struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewSessionLockSet() *SessionLockSet {
	return &SessionLockSet{locks: make(map[uint]*sync.Mutex)}
}

// Lock acquires the per-user lock and returns its unlock func. Locks are kept
// for the process lifetime; the per-user footprint is one mutex.
func (s *SessionLockSet) Lock(userID uint) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
