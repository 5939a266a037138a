package router

import (
	"sync"
	"time"
)

const defaultPruneInterval = 5 * time.Minute

// lazyPruner drops idle sessions at most once per interval. The pipeline
// calls TryPrune after each message; the cron job and the admin API call
// Force. Sessions with a run in flight are never pruned.
type lazyPruner struct {
	store    SessionStore
	lanes    *LaneLock
	maxIdle  time.Duration
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

func newLazyPruner(store SessionStore, lanes *LaneLock, maxIdle time.Duration) *lazyPruner {
	return &lazyPruner{
		store:    store,
		lanes:    lanes,
		maxIdle:  maxIdle,
		interval: defaultPruneInterval,
		now:      time.Now,
	}
}

// TryPrune prunes unless the previous run is less than an interval old.
func (p *lazyPruner) TryPrune() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now := p.now(); now.Sub(p.lastRun) >= p.interval {
		p.lastRun = now
		return p.prune()
	}
	return 0
}

func (p *lazyPruner) Force() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRun = p.now()
	return p.prune()
}

func (p *lazyPruner) prune() int {
	var busy func(SessionKey) bool
	if p.lanes != nil {
		busy = p.lanes.Busy
	}
	return p.store.Prune(p.maxIdle, busy)
}
