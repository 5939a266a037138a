// Package router dispatches inbound messages to agent sessions: trigger
// filtering, commands, per-chat serialization, history and replies.
package router

import "errors"

// Sentinel errors for router operations.
var (
	// ErrInboxFull indicates the inbox is at capacity and the message was
	// dropped.
	ErrInboxFull = errors.New("router: inbox full, message dropped")

	// ErrRouterStopped indicates the router no longer accepts messages.
	ErrRouterStopped = errors.New("router: stopped")

	// ErrNoAgent indicates no agent runner has been configured.
	ErrNoAgent = errors.New("router: no agent configured")

	// ErrNoResponseSender indicates no response sender has been configured.
	ErrNoResponseSender = errors.New("router: no response sender configured")

	// ErrNoExporter indicates /export was used without an exporter.
	ErrNoExporter = errors.New("router: transcript export not available")
)
