package channel

import "errors"

var (
	ErrNoChannel        = errors.New("channel: unknown channel")
	ErrDuplicateChannel = errors.New("channel: duplicate channel name")
	// ErrNoInbox is returned when a message arrives before SetInbox.
	ErrNoInbox = errors.New("channel: inbox not set")
	// ErrDenied means the sender is not on the allow-list.
	ErrDenied  = errors.New("channel: sender not allowed")
	ErrNoFiles = errors.New("channel: file download not supported")
)
