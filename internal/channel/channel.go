// Package channel defines the bridge between messaging platforms and the
// router: the Channel interface, typing indicators, message chunking and
// allow-list filtering.
package channel

import (
	"context"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/pkg/message"
)

// Channel is the bridge between a messaging platform and the router.
//
// A channel receives messages from its platform, checks the allow-list, and
// pushes them to the router via the inbox callback. Outbound messages come
// back through Send.
type Channel interface {
	core.Module

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg message.OutboundMessage) error

	// SetInbox gives the channel a function to push inbound messages to the
	// router. Called during wiring, before Start.
	SetInbox(fn func(msg message.InboundMessage) error)
}

// FileFetcher is implemented by channels that can download attachments
// referenced by ContentBlock.FileID.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}
