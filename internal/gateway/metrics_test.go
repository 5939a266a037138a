package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flemzord/tgmcp/internal/agent"
	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/router"
	"github.com/flemzord/tgmcp/internal/tool"
)

func TestMetrics_RouterEvents(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Publish(router.Event{Type: router.EventReceived})
	m.Publish(router.Event{Type: router.EventReceived})
	m.Publish(router.Event{Type: router.EventReplied, Duration: time.Second})
	m.Publish(router.Event{Type: router.EventReplied, Duration: 3 * time.Second})
	m.Publish(router.Event{Type: router.EventFailed})
	m.Publish(router.Event{Type: router.EventCommand, Command: "reset"})

	snap := m.Snapshot()
	if snap.Received != 2 || snap.Replied != 2 || snap.Failed != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.AvgReply != 2*time.Second {
		t.Errorf("AvgReply = %v, want 2s", snap.AvgReply)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(string(router.EventCommand))); got != 1 {
		t.Errorf("command events = %v, want 1", got)
	}
}

func TestMetrics_ToolObserver(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	ctx := m.ToolStarted(context.Background(), provider.ToolCall{Name: "search"})
	m.ToolFinished(ctx, agent.ToolCallRecord{Name: "search", Duration: 10 * time.Millisecond})
	m.ToolFinished(ctx, agent.ToolCallRecord{Name: "search", Output: tool.Output{IsError: true}})
	m.ToolFinished(ctx, agent.ToolCallRecord{Name: "fs_read", Panicked: true})

	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("search", "ok")); got != 1 {
		t.Errorf("search ok = %v", got)
	}
	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("search", "error")); got != 1 {
		t.Errorf("search error = %v", got)
	}
	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("fs_read", "panic")); got != 1 {
		t.Errorf("fs_read panic = %v", got)
	}
	if m.Snapshot().ToolCalls != 3 {
		t.Errorf("ToolCalls = %d, want 3", m.Snapshot().ToolCalls)
	}
}

func TestMetrics_Completions(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Completed(context.Background(), 0, provider.CompletionResponse{
		Usage: provider.TokenUsage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100},
	})
	m.Completed(context.Background(), 1, provider.CompletionResponse{
		Usage: provider.TokenUsage{PromptTokens: 150, CompletionTokens: 50, TotalTokens: 200},
	})

	if got := testutil.ToFloat64(m.completions); got != 2 {
		t.Errorf("completions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("prompt")); got != 230 {
		t.Errorf("prompt tokens = %v, want 230", got)
	}
	if m.Snapshot().TotalTokens != 300 {
		t.Errorf("TotalTokens = %d, want 300", m.Snapshot().TotalTokens)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Publish(router.Event{Type: router.EventReceived})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`tgmcp_router_events_total{type="message.received"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Publish(router.Event{Type: router.EventReceived})
		}()
		go func() {
			defer wg.Done()
			_ = m.Snapshot()
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Received; got != 50 {
		t.Errorf("Received = %d, want 50", got)
	}
}
