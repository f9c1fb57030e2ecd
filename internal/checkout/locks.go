package checkout

import (
	"sync"

	"github.com/google/uuid"
)

// sessionLocks serializes work per session. Entries are dropped once unused.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: map[uuid.UUID]*sessionLock{}}
}

func (k *sessionLocks) lock(id uuid.UUID) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &sessionLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
