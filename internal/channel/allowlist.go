package channel

import (
	"strings"

	"github.com/flemzord/tgmcp/pkg/message"
)

// AllowList restricts which users and chats may talk to the bot. A nil or
// empty AllowList allows everyone.
type AllowList struct {
	users  map[string]struct{}
	groups map[string]struct{}
}

// NewAllowList creates an AllowList. User entries match a sender ID or
// username (with or without "@"); group entries match a chat ID.
func NewAllowList(users, groups []string) *AllowList {
	a := &AllowList{
		users:  make(map[string]struct{}, len(users)),
		groups: make(map[string]struct{}, len(groups)),
	}
	for _, u := range users {
		if k := normalize(u); k != "" {
			a.users[k] = struct{}{}
		}
	}
	for _, g := range groups {
		if k := normalize(g); k != "" {
			a.groups[k] = struct{}{}
		}
	}
	return a
}

// Empty reports whether the list places no restriction.
func (a *AllowList) Empty() bool {
	return a == nil || (len(a.users) == 0 && len(a.groups) == 0)
}

// IsAllowed reports whether the message sender or chat is permitted.
func (a *AllowList) IsAllowed(msg message.InboundMessage) bool {
	if a.Empty() {
		return true
	}
	if _, ok := a.users[normalize(msg.Sender.ID)]; ok {
		return true
	}
	if msg.Sender.Username != "" {
		if _, ok := a.users[normalize(msg.Sender.Username)]; ok {
			return true
		}
	}
	_, ok := a.groups[normalize(msg.Chat.ID)]
	return ok
}

func normalize(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "@")
}
