// Package telegram implements the Telegram Bot API channel.
//
// It converts updates into platform-neutral messages (text, captions,
// commands, mentions, replies and document references) and delivers
// replies: short answers as quoted replies, long ones as expandable block
// quotes rendered from Markdown. Updates arrive by long polling (default)
// or through the gateway's webhook endpoint.
//
// The module registers itself as "channel.telegram" and talks to the Bot
// API with net/http and encoding/json.
package telegram
