package security

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	KindMessage  = "message"
	KindToolCall = "tool_call"
	KindToken    = "token"
)

// RateLimitConfig holds configurable rate limits. Message limits apply per
// chat, tool call and token limits apply to the whole bot.
type RateLimitConfig struct {
	MessagesPerMin  int `yaml:"messages_per_min"`
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	TokensPerHour   int `yaml:"tokens_per_hour"`
}

// RateLimiter implements sliding window rate limiting. Each (kind, key)
// pair has its own window.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]limit
	buckets map[string]*bucket
	now     func() time.Time
}

type limit struct {
	window time.Duration
	max    int
}

type bucket struct {
	events []time.Time
}

// NewRateLimiter creates a rate limiter. Zero message and tool limits get
// defaults; a zero token limit means unlimited.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MessagesPerMin <= 0 {
		cfg.MessagesPerMin = 20
	}
	if cfg.ToolCallsPerMin <= 0 {
		cfg.ToolCallsPerMin = 120
	}

	rl := &RateLimiter{
		now:     time.Now,
		buckets: make(map[string]*bucket),
		limits: map[string]limit{
			KindMessage:  {window: time.Minute, max: cfg.MessagesPerMin},
			KindToolCall: {window: time.Minute, max: cfg.ToolCallsPerMin},
		},
	}
	if cfg.TokensPerHour > 0 {
		rl.limits[KindToken] = limit{window: time.Hour, max: cfg.TokensPerHour}
	}
	return rl
}

// Allow records one event of kind for key, or returns ErrRateLimited.
// Unknown kinds are not limited.
func (rl *RateLimiter) Allow(kind, key string) error {
	return rl.AllowN(kind, key, 1)
}

// AllowN records n events at once, e.g. the tokens used by a completion.
func (rl *RateLimiter) AllowN(kind, key string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.limits[kind]
	if !ok {
		return nil
	}

	id := kind + "\x00" + key
	b, ok := rl.buckets[id]
	if !ok {
		b = &bucket{}
		rl.buckets[id] = b
	}

	now := rl.now()
	b.evict(now.Add(-lim.window))

	if len(b.events)+n > lim.max {
		return ErrRateLimited
	}
	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// Record adds n events without checking the limit. Used for usage that is
// only known afterwards, such as completion tokens.
func (rl *RateLimiter) Record(kind, key string, n int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if _, ok := rl.limits[kind]; !ok || n <= 0 {
		return
	}
	id := kind + "\x00" + key
	b, ok := rl.buckets[id]
	if !ok {
		b = &bucket{}
		rl.buckets[id] = b
	}
	now := rl.now()
	for range n {
		b.events = append(b.events, now)
	}
}

// Sweep drops empty buckets. Called by the session pruning job.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, b := range rl.buckets {
		kind, _, _ := strings.Cut(id, "\x00")
		b.evict(now.Add(-rl.limits[kind].window))
		if len(b.events) == 0 {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// evict removes events older than cutoff. Events are chronological.
func (b *bucket) evict(cutoff time.Time) {
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
