package session

import "sync"

// Locker serializes turn processing per session key. The memory core's
// read-modify-write sequence is not internally atomic, so the caller must
// hold the session's lock across one whole turn. Different sessions proceed
// in parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the session's lock is held and returns the release
// function. Locks are never removed; the registry grows with the number of
// distinct sessions seen by this process.
func (l *Locker) Acquire(key string) (release func()) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
