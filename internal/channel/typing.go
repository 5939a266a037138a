package channel

import (
	"context"
	"time"

	"github.com/flemzord/tgmcp/pkg/message"
)

// DefaultTypingInterval is how often the indicator is refreshed. Telegram
// clears it after about five seconds.
const DefaultTypingInterval = 4 * time.Second

// TypingChannel is implemented by channels that can show typing indicators
// while the agent is processing.
type TypingChannel interface {
	Channel

	// SendTyping sends a single typing indicator to the platform.
	SendTyping(ctx context.Context, chat message.Chat) error
}

// StartTypingLoop sends typing indicators at the given interval until ctx
// is done.
func StartTypingLoop(ctx context.Context, ch TypingChannel, chat message.Chat, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_ = ch.SendTyping(ctx, chat)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendTyping(ctx, chat)
			}
		}
	}()
}
