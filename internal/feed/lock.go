package feed

import (
	"context"
	"sync"
)

// userLocks serializes generation runs per user within one process.
// Entries are reference counted and removed once no run holds or awaits them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock is held while its one-slot channel is full.
type userLock struct {
	held chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock blocks until userID's lock is held or ctx is done, and returns the
// release func. On ctx expiry nothing is held and ctx.Err() is returned.
func (l *userLocks) lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{held: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.held <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, ctx.Err()
	}

	return func() {
		<-ul.held
		l.release(userID, ul)
	}, nil
}

func (l *userLocks) release(userID string, ul *userLock) {
	l.mu.Lock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
	l.mu.Unlock()
}

// size returns the number of tracked users.
func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
