package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/tgmcp/internal/security"
	"github.com/flemzord/tgmcp/pkg/message"
)

const (
	defaultInboxSize = 256
	defaultMaxIdle   = 30 * time.Minute
)

// Config holds the configuration for a Router.
type Config struct {
	WorkerCount int
	InboxSize   int
	MaxIdle     time.Duration

	// HistoryWindow is how many past messages the agent sees.
	HistoryWindow int

	// MaxHistory caps the per-chat history kept in memory and restored
	// from the history store.
	MaxHistory int

	Agent        AgentRunner
	Instructions string
	Tools        ToolLister
	Sender       ResponseSender
	Policy       TriggerPolicy
	Logger       *slog.Logger
	DataDir      string

	// Optional collaborators. Nil disables the feature.
	History   HistoryStore
	Files     FileFetcher
	Extractor TextExtractor
	Exporter  TranscriptExporter
	Reporter  ErrorReporter
	Events    EventSink

	// RateLimiter, if non-nil, limits messages per chat and tokens per hour.
	RateLimiter *security.RateLimiter

	// MaxMessageSize is the maximum raw payload size in bytes.
	// Zero means use the default (1 MiB).
	MaxMessageSize int
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Router receives inbound messages, keeps per-chat sessions and hands each
// message to the pipeline on a worker pool. Messages of one chat are
// processed in order.
type Router struct {
	config   Config
	mu       sync.Mutex
	store    *MemoryStore
	laneLock *LaneLock
	pool     *WorkerPool
	pipeline *Pipeline
	pruner   *lazyPruner
	cancel   context.CancelFunc
	stopOnce sync.Once
	logger   *slog.Logger
	stopped  atomic.Bool
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()

	if cfg.Agent == nil {
		return nil, ErrNoAgent
	}
	if cfg.Sender == nil {
		return nil, ErrNoResponseSender
	}

	store := NewMemoryStore()
	laneLock := NewLaneLock()
	pruner := newLazyPruner(store, laneLock, cfg.MaxIdle)

	pipeline := NewPipeline(PipelineConfig{
		Store:         store,
		LaneLock:      laneLock,
		Agent:         cfg.Agent,
		Sender:        cfg.Sender,
		Tools:         cfg.Tools,
		Policy:        cfg.Policy,
		Pruner:        pruner,
		Logger:        cfg.Logger,
		Instructions:  cfg.Instructions,
		HistoryWindow: cfg.HistoryWindow,
		MaxHistoryLen: cfg.MaxHistory,
		DataDir:       cfg.DataDir,
		History:       cfg.History,
		Files:         cfg.Files,
		Extractor:     cfg.Extractor,
		Exporter:      cfg.Exporter,
		Reporter:      cfg.Reporter,
		Events:        cfg.Events,
		RateLimiter:   cfg.RateLimiter,
	})

	r := &Router{
		config:   cfg,
		store:    store,
		laneLock: laneLock,
		pipeline: pipeline,
		pruner:   pruner,
		logger:   cfg.Logger,
	}
	r.pool = NewWorkerPool(cfg.WorkerCount, cfg.InboxSize, r.recovered)
	return r, nil
}

// recovered logs and reports a panic raised while handling env.
func (r *Router) recovered(env envelope, perr *PanicError) {
	r.logger.Error("router: panic while handling message",
		"channel", env.Key.Channel,
		"chat_id", env.Key.ChatID,
		"panic", perr.Value,
		"stack", string(perr.Stack),
	)
	r.pipeline.publish(Event{Type: EventFailed, Channel: env.Key.Channel, ChatID: env.Key.ChatID, Error: perr.Error()})
	r.pipeline.report(perr, env, nil)
}

// Start launches the worker pool and begins processing messages.
func (r *Router) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.stopped.Load() {
		r.mu.Unlock()
		cancel()
		r.logger.Warn("router: start ignored, router already stopped")
		return
	}
	r.cancel = cancel
	r.mu.Unlock()

	r.pool.Start(ctx, func(ctx context.Context, env envelope) {
		r.pipeline.Execute(ctx, env)
	})
	r.logger.Info("router: started", "workers", r.config.WorkerCount, "inbox_size", r.config.InboxSize)
}

// Submit enqueues an inbound message for processing. It never blocks: a
// full inbox drops the message with ErrInboxFull.
func (r *Router) Submit(msg message.InboundMessage) error {
	if r.stopped.Load() {
		return ErrRouterStopped
	}

	limits := security.PayloadLimits{MaxBytes: r.config.MaxMessageSize}
	if err := limits.Check(msg.Raw); err != nil {
		r.logger.Warn("router: inbound payload rejected", "size", len(msg.Raw), "channel", msg.Channel, "error", err)
		return err
	}

	if rl := r.config.RateLimiter; rl != nil {
		if err := rl.Allow(security.KindMessage, msg.Chat.ID); err != nil {
			r.logger.Warn("router: message rate limited", "channel", msg.Channel, "chat_id", msg.Chat.ID)
			return err
		}
	}

	key := SessionKeyFromMessage(msg)
	env := envelope{Message: msg, Key: key, Received: time.Now()}

	err := r.pool.Submit(env)
	if errors.Is(err, ErrInboxFull) {
		r.logger.Warn("router: inbox full, message dropped", "channel", key.Channel, "chat_id", key.ChatID)
	}
	return err
}

// Stop stops accepting messages, cancels in-flight work and waits for the
// workers to drain the queues.
func (r *Router) Stop(_ context.Context) {
	r.stopOnce.Do(func() {
		r.logger.Info("router: stopping")

		r.mu.Lock()
		r.stopped.Store(true)
		cancel := r.cancel
		r.mu.Unlock()

		r.pool.Close()
		if cancel != nil {
			cancel()
		}

		r.pool.Wait()
		r.logger.Info("router: stopped")
	})
}

// PruneSessions drops idle sessions now and returns how many were removed.
func (r *Router) PruneSessions() int {
	return r.pruner.Force()
}

// SessionCount returns the number of live sessions without waiting on lanes.
func (r *Router) SessionCount() int {
	return r.store.Len()
}

// Sessions returns the session store for external inspection.
func (r *Router) Sessions() SessionStore {
	return r.store
}

// SessionInfo is a read-only session summary.
type SessionInfo struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Title        string    `json:"title,omitempty"`
	Messages     int       `json:"messages"`
	Runs         int       `json:"runs"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Busy         bool      `json:"busy,omitempty"`
}

// Snapshot lists the current sessions. Fields are copied under each
// session's lane; a session in the middle of a run is reported as busy
// with its key only.
func (r *Router) Snapshot() []SessionInfo {
	keys := r.store.Keys()
	out := make([]SessionInfo, 0, len(keys))
	for _, key := range keys {
		if !r.laneLock.TryAcquire(key) {
			out = append(out, SessionInfo{Key: key.String(), Busy: true})
			continue
		}
		if s := r.store.Get(key); s != nil {
			out = append(out, SessionInfo{
				ID:           s.ID,
				Key:          key.String(),
				Title:        s.Title,
				Messages:     len(s.History),
				Runs:         s.Runs,
				CreatedAt:    s.CreatedAt,
				LastActiveAt: s.LastActiveAt,
			})
		}
		r.laneLock.Release(key)
	}
	return out
}
