package channel

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/flemzord/tgmcp/pkg/message"
)

// Dispatcher fans replies out to channels by name. The router sends
// through it, so a reply always leaves through the channel its message
// came in on.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{channels: make(map[string]Channel)}
}

// Register fails with ErrDuplicateChannel when name is taken.
func (d *Dispatcher) Register(name string, ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.channels[name]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	d.channels[name] = ch
	return nil
}

func (d *Dispatcher) Get(name string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[name]
	return ch, ok
}

// Channels lists the registered names in order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.channels))
}

func (d *Dispatcher) Send(ctx context.Context, msg message.OutboundMessage) error {
	ch, err := d.must(msg.Channel)
	if err != nil {
		return err
	}
	return ch.Send(ctx, msg)
}

// Typing returns the named channel if it can show a typing indicator.
func (d *Dispatcher) Typing(name string) (TypingChannel, bool) {
	ch, _ := d.Get(name)
	tc, ok := ch.(TypingChannel)
	return tc, ok
}

// FetchFile downloads an attachment through the named channel.
func (d *Dispatcher) FetchFile(ctx context.Context, name, fileID string) ([]byte, error) {
	ch, err := d.must(name)
	if err != nil {
		return nil, err
	}
	f, ok := ch.(FileFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, name)
	}
	return f.FetchFile(ctx, fileID)
}

func (d *Dispatcher) must(name string) (Channel, error) {
	ch, ok := d.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, name)
	}
	return ch, nil
}
