package executor

import (
	"sync"

	"github.com/google/uuid"
)

// projectLocks is a keyed mutex; entries are dropped once unused.
type projectLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*projectLock
}

type projectLock struct {
	mu   sync.Mutex
	refs int
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[uuid.UUID]*projectLock)}
}

func (l *projectLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	pl, ok := l.locks[id]
	if !ok {
		pl = &projectLock{}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
