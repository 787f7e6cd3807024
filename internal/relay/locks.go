package relay

import "sync"

// chatLocks hands out one mutex per ChatID. Entries are reference counted
// and dropped when the last holder unlocks, so the map stays as small as
// the number of in-flight announcements.
type chatLocks struct {
	mu sync.Mutex
	m  map[ChatID]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{m: map[ChatID]*chatLock{}}
}

// lock blocks until id is held and returns the matching unlock.
func (l *chatLocks) lock(id ChatID) (unlock func()) {
	l.mu.Lock()
	cl := l.m[id]
	if cl == nil {
		cl = &chatLock{}
		l.m[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *chatLocks) inFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
