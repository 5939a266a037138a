package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLaneLock_SerializesOneSession(t *testing.T) {
	t.Parallel()

	l := NewLaneLock()
	key := SessionKey{Channel: "channel.telegram", ChatID: "42"}

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), key); err != nil {
				t.Error(err)
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			l.Release(key)
		}()
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("two holders inside the same lane")
	}
}

func TestLaneLock_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	l := NewLaneLock()
	key := SessionKey{Channel: "c", ChatID: "busy"}
	if err := l.Acquire(context.Background(), key); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, key); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}

	l.mu.Lock()
	refs := l.lanes[key].refs
	l.mu.Unlock()
	if refs != 1 {
		t.Errorf("refs = %d after abandoned wait, want 1", refs)
	}
	l.Release(key)
}

func TestLaneLock_TryAcquire(t *testing.T) {
	t.Parallel()

	l := NewLaneLock()
	key := SessionKey{Channel: "c", ChatID: "1"}

	if !l.TryAcquire(key) {
		t.Fatal("free lane should be taken")
	}
	if l.TryAcquire(key) {
		t.Fatal("held lane should not be taken twice")
	}
	l.Release(key)
	if !l.TryAcquire(key) {
		t.Fatal("released lane should be free")
	}
	l.Release(key)
}

func TestLaneLock_DropsIdleLanes(t *testing.T) {
	t.Parallel()

	l := NewLaneLock()
	a := SessionKey{Channel: "c", ChatID: "a"}
	b := SessionKey{Channel: "c", ChatID: "b"}

	ctx := context.Background()
	_ = l.Acquire(ctx, a)
	_ = l.Acquire(ctx, b)
	l.Release(b)

	if l.Busy(b) {
		t.Error("released lane b should be gone")
	}
	if !l.Busy(a) {
		t.Error("held lane a should be busy")
	}
	l.Release(a)
	if len(l.lanes) != 0 {
		t.Errorf("lanes left = %d, want 0", len(l.lanes))
	}
	// Releasing an unknown key is a no-op.
	l.Release(SessionKey{ChatID: "nobody"})
}
