package infrastructure

import "sync"

// conversationLock serializes work on one conversation.
type conversationLock struct {
	mu   sync.Mutex
	refs int
}

// SessionManager hands out one lock per conversation key. Entries are
// dropped once nobody holds or waits on them.
type SessionManager struct {
	locks map[string]*conversationLock
	mu    sync.Mutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		locks: make(map[string]*conversationLock),
	}
}

// Lock blocks until key is free and returns the matching unlock.
func (sm *SessionManager) Lock(key string) (unlock func()) {
	sm.mu.Lock()
	l, ok := sm.locks[key]
	if !ok {
		l = &conversationLock{}
		sm.locks[key] = l
	}
	l.refs++
	sm.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		sm.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(sm.locks, key)
		}
		sm.mu.Unlock()
	}
}

// Active is the number of keys currently held or awaited.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.locks)
}
