package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// updateHandler processes one update. Implemented by Telegram.
type updateHandler func(update *Update)

// Poller receives updates with getUpdates long polling.
type Poller struct {
	client  *Client
	handle  updateHandler
	logger  *slog.Logger
	timeout int
	allowed []string

	// pause is how long polling waits after repeated failures.
	pause time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a new Poller.
func NewPoller(client *Client, handle updateHandler, logger *slog.Logger, cfg Config) *Poller {
	return &Poller{
		client:  client,
		handle:  handle,
		logger:  logger,
		timeout: cfg.pollingTimeout(),
		allowed: cfg.AllowedUpdates,
		pause:   errorPauseDuration,
		done:    make(chan struct{}),
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.loop(ctx)
}

// Stop cancels the in-flight poll and waits for the loop to exit. It is
// safe to call Stop multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	if p.cancel != nil {
		<-p.done
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	var (
		offset            int
		consecutiveErrors int
	)
	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.timeout,
			AllowedUpdates: p.allowed,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed", "error", err, "consecutive_errors", consecutiveErrors)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors", "pause", p.pause)
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.pause):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0
		for i := range updates {
			offset = updates[i].UpdateID + 1
			p.handle(&updates[i])
		}
	}
}
