package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/tgmcp/internal/agent"
	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/router"
)

const namespace = "tgmcp"

var (
	_ router.EventSink = (*Metrics)(nil)
	_ agent.Observer   = (*Metrics)(nil)
)

// Metrics holds the Prometheus collectors of the bot. It receives router
// events and agent observer callbacks. Counters are also kept as atomics
// for the JSON status endpoint.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	replyDuration prometheus.Histogram
	completions   prometheus.Counter
	tokens        *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec

	received     atomic.Int64
	replied      atomic.Int64
	failed       atomic.Int64
	toolsRun     atomic.Int64
	totalTokens  atomic.Int64
	totalLatency atomic.Int64 // nanoseconds, replied messages only
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_events_total",
			Help:      "Router events by type.",
		}, []string{"type"}),
		replyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_duration_seconds",
			Help:      "Time from message receipt to reply.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_completions_total",
			Help:      "Provider completions.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed, by kind.",
		}, []string{"kind"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and outcome.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.replyDuration, m.completions, m.tokens, m.toolCalls, m.toolDuration,
	)
	return m
}

// Registry exposes the registry so other components can add collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Publish implements router.EventSink.
func (m *Metrics) Publish(e router.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case router.EventReceived:
		m.received.Add(1)
	case router.EventReplied:
		m.replied.Add(1)
		m.totalLatency.Add(int64(e.Duration))
		m.replyDuration.Observe(e.Duration.Seconds())
	case router.EventFailed:
		m.failed.Add(1)
	}
}

// ToolStarted implements agent.Observer.
func (m *Metrics) ToolStarted(ctx context.Context, _ provider.ToolCall) context.Context {
	return ctx
}

// ToolFinished implements agent.Observer.
func (m *Metrics) ToolFinished(_ context.Context, rec agent.ToolCallRecord) {
	status := "ok"
	switch {
	case rec.Panicked:
		status = "panic"
	case rec.Output.IsError:
		status = "error"
	}
	m.toolsRun.Add(1)
	m.toolCalls.WithLabelValues(rec.Name, status).Inc()
	m.toolDuration.WithLabelValues(rec.Name).Observe(rec.Duration.Seconds())
}

// Completed implements agent.Observer.
func (m *Metrics) Completed(_ context.Context, _ int, resp provider.CompletionResponse) {
	m.completions.Inc()
	m.tokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	m.tokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	m.totalTokens.Add(int64(resp.Usage.TotalTokens))
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	replied := m.replied.Load()
	snap := MetricsSnapshot{
		Received:    m.received.Load(),
		Replied:     replied,
		Failed:      m.failed.Load(),
		ToolCalls:   m.toolsRun.Load(),
		TotalTokens: m.totalTokens.Load(),
	}
	if replied > 0 {
		snap.AvgReply = time.Duration(m.totalLatency.Load() / replied)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Received    int64         `json:"received"`
	Replied     int64         `json:"replied"`
	Failed      int64         `json:"failed"`
	ToolCalls   int64         `json:"tool_calls"`
	TotalTokens int64         `json:"total_tokens"`
	AvgReply    time.Duration `json:"avg_reply_ns"`
}
