package router

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"
)

func keyedEnv(chat string, seq int) envelope {
	msg := privateMsg(strconv.Itoa(seq), "m")
	msg.Chat.ID = chat
	return envFor(msg)
}

func TestWorkerPool_KeepsSessionOrder(t *testing.T) {
	t.Parallel()

	const perChat = 200
	chats := []string{"1", "2", "3"}

	var (
		mu      sync.Mutex
		seen    = make(map[string][]int)
		running = make(map[string]int)
		overlap bool
	)
	p := NewWorkerPool(8, perChat*len(chats), nil)
	p.Start(context.Background(), func(_ context.Context, env envelope) {
		mu.Lock()
		running[env.Key.ChatID]++
		if running[env.Key.ChatID] > 1 {
			overlap = true
		}
		mu.Unlock()

		runtime.Gosched()
		seq, _ := strconv.Atoi(env.Message.ID)

		mu.Lock()
		seen[env.Key.ChatID] = append(seen[env.Key.ChatID], seq)
		running[env.Key.ChatID]--
		mu.Unlock()
	})

	for i := range perChat {
		for _, chat := range chats {
			if err := p.Submit(keyedEnv(chat, i)); err != nil {
				t.Fatal(err)
			}
		}
	}
	p.Close()
	p.Wait()

	if overlap {
		t.Error("two workers handled the same chat at once")
	}
	for _, chat := range chats {
		got := seen[chat]
		if len(got) != perChat {
			t.Fatalf("chat %s: handled %d messages, want %d", chat, len(got), perChat)
		}
		for i, seq := range got {
			if seq != i {
				t.Fatalf("chat %s: position %d holds message %d", chat, i, seq)
			}
		}
	}
}

func TestWorkerPool_BusyChatDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	other := make(chan struct{})
	p := NewWorkerPool(2, 16, nil)
	p.Start(context.Background(), func(_ context.Context, env envelope) {
		if env.Key.ChatID == "slow" {
			<-release
			return
		}
		close(other)
	})
	defer func() {
		close(release)
		p.Close()
		p.Wait()
	}()

	for i := range 5 {
		if err := p.Submit(keyedEnv("slow", i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Submit(keyedEnv("fast", 0)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-other:
	case <-time.After(2 * time.Second):
		t.Fatal("a burst from one chat starved the other chat")
	}
}

func TestWorkerPool_Capacity(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool(1, 2, nil)
	for i := range 2 {
		if err := p.Submit(keyedEnv("1", i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Submit(keyedEnv("2", 0)); !errors.Is(err, ErrInboxFull) {
		t.Errorf("submit over capacity = %v, want ErrInboxFull", err)
	}

	p.Close()
	if err := p.Submit(keyedEnv("3", 0)); !errors.Is(err, ErrRouterStopped) {
		t.Errorf("submit after close = %v, want ErrRouterStopped", err)
	}
}

func TestWorkerPool_DrainsQueueOnClose(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	handled := 0
	p := NewWorkerPool(3, 64, nil)
	for i := range 20 {
		if err := p.Submit(keyedEnv(strconv.Itoa(i%4), i)); err != nil {
			t.Fatal(err)
		}
	}
	p.Start(context.Background(), func(context.Context, envelope) {
		mu.Lock()
		handled++
		mu.Unlock()
	})
	p.Close()
	p.Wait()

	if handled != 20 {
		t.Errorf("handled %d messages, want 20", handled)
	}
}
