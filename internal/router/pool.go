package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/flemzord/tgmcp/pkg/message"
)

// DefaultWorkerCount is the number of workers when no size is specified.
const DefaultWorkerCount = 10

// envelope is one queued inbound message.
type envelope struct {
	Message  message.InboundMessage
	Key      SessionKey
	Received time.Time
}

// PanicError carries a panic recovered while handling one message.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// WorkerPool runs a fixed set of goroutines over per-session FIFO queues.
// A session is handled by at most one worker at a time, so its messages
// run in submission order, and a busy session never holds more than one
// worker. After each message the session goes to the back of the ready
// list, letting other chats interleave with a burst.
//
// A panic while handling a message is recovered and handed to onPanic; the
// worker then moves on.
type WorkerPool struct {
	size     int
	capacity int
	onPanic  func(envelope, *PanicError)
	wg       sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	queues  map[SessionKey][]envelope // present while queued or running
	ready   []SessionKey              // sessions waiting for a worker
	pending int
	closed  bool
}

// NewWorkerPool creates a pool with the given size holding at most capacity
// queued messages. If size <= 0, DefaultWorkerCount is used; capacity <= 0
// means defaultInboxSize.
func NewWorkerPool(size, capacity int, onPanic func(envelope, *PanicError)) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkerCount
	}
	if capacity <= 0 {
		capacity = defaultInboxSize
	}
	p := &WorkerPool{
		size:     size,
		capacity: capacity,
		onPanic:  onPanic,
		queues:   make(map[SessionKey][]envelope),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Submit queues env behind the other messages of its session. It never
// blocks: it fails with ErrInboxFull at capacity and ErrRouterStopped once
// the pool is closed.
func (p *WorkerPool) Submit(env envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return ErrRouterStopped
	case p.pending >= p.capacity:
		return ErrInboxFull
	}
	q, scheduled := p.queues[env.Key]
	p.queues[env.Key] = append(q, env)
	p.pending++
	if !scheduled {
		p.ready = append(p.ready, env.Key)
		p.cond.Signal()
	}
	return nil
}

// Start launches the workers. They exit once the pool is closed and every
// queued message has been handled.
func (p *WorkerPool) Start(ctx context.Context, handler func(context.Context, envelope)) {
	for range p.size {
		p.wg.Go(func() {
			for {
				env, ok := p.next()
				if !ok {
					return
				}
				p.handle(ctx, env, handler)
				p.done(env.Key)
			}
		})
	}
}

// next waits for a ready session and takes its oldest message.
func (p *WorkerPool) next() (envelope, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.ready) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.ready) == 0 {
		return envelope{}, false
	}
	key := p.ready[0]
	p.ready = p.ready[1:]
	q := p.queues[key]
	env := q[0]
	p.queues[key] = q[1:]
	p.pending--
	return env, true
}

// done reschedules key when more of its messages arrived meanwhile.
func (p *WorkerPool) done(key SessionKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queues[key]) == 0 {
		delete(p.queues, key)
		return
	}
	p.ready = append(p.ready, key)
	p.cond.Signal()
}

func (p *WorkerPool) handle(ctx context.Context, env envelope, handler func(context.Context, envelope)) {
	defer func() {
		if v := recover(); v != nil && p.onPanic != nil {
			p.onPanic(env, &PanicError{Value: v, Stack: debug.Stack()})
		}
	}()
	handler(ctx, env)
}

// Close stops accepting messages. Workers drain what is queued, then exit.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
