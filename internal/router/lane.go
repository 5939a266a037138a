package router

import (
	"context"
	"sync"
)

// LaneLock guards a session's state while a run uses it. Ordering comes
// from the worker pool; the lane keeps snapshots, pruning and /reset off a
// session that is mid-run. The map mutex is only held to find a lane.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[SessionKey]*lane
}

// lane is a one-slot semaphore. refs counts holders and waiters; the lane
// leaves the map when refs drops to zero, so idle chats cost nothing.
type lane struct {
	slot chan struct{}
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{lanes: make(map[SessionKey]*lane)}
}

func (l *LaneLock) join(key SessionKey) *lane {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{slot: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	return ln
}

func (l *LaneLock) leave(key SessionKey, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 && l.lanes[key] == ln {
		delete(l.lanes, key)
	}
}

// Acquire waits for the session's lane. It gives up with ctx's error when
// ctx ends first, e.g. while the router shuts down behind a long agent run.
// On success the caller must call Release with the same key.
func (l *LaneLock) Acquire(ctx context.Context, key SessionKey) error {
	ln := l.join(key)
	select {
	case ln.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.leave(key, ln)
		return ctx.Err()
	}
}

// TryAcquire takes the lane only if it is free right now.
func (l *LaneLock) TryAcquire(key SessionKey) bool {
	ln := l.join(key)
	select {
	case ln.slot <- struct{}{}:
		return true
	default:
		l.leave(key, ln)
		return false
	}
}

// Release frees the lane taken by Acquire or TryAcquire.
func (l *LaneLock) Release(key SessionKey) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-ln.slot
	l.leave(key, ln)
}

// Busy reports whether a run holds or waits for the session's lane.
func (l *LaneLock) Busy(key SessionKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.lanes[key]
	return ok
}
