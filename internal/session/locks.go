package session

import "sync"

type refLock struct {
	mu   sync.Mutex
	refs int
}

// threadLocks serializes work per thread id inside one process. Entries
// are dropped once no goroutine holds or waits on them.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*refLock)}
}

// Lock blocks until the caller owns threadID and returns the release func.
func (t *threadLocks) Lock(threadID string) func() {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &refLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}

func (t *threadLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
