package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SessionPruner is the part of the router the prune job needs.
type SessionPruner interface {
	PruneSessions() int
}

// Sweeper drops expired rate limiter windows.
type Sweeper interface {
	Sweep() int
}

// MCPHealth is the part of the MCP manager the health job needs. It
// pings every server, reconnects the broken ones and returns the names
// still down.
type MCPHealth interface {
	HealthCheck(ctx context.Context) []string
}

// HistoryStore is the part of the persistent history the trim job needs.
type HistoryStore interface {
	Trim(ctx context.Context, keep int) (int64, error)
	Vacuum(ctx context.Context) error
}

// SessionPruneJob drops sessions idle past the router's TTL, and the rate
// limiter windows of chats that went quiet.
type SessionPruneJob struct {
	Sessions     SessionPruner
	Limiter      Sweeper // optional
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

var _ Job = (*SessionPruneJob)(nil)

// Name implements Job.
func (j *SessionPruneJob) Name() string { return "session_prune" }

// Schedule implements Job.
func (j *SessionPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run prunes idle sessions.
func (j *SessionPruneJob) Run(_ context.Context) error {
	if pruned := j.Sessions.PruneSessions(); pruned > 0 {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned)
	}
	if j.Limiter != nil {
		if swept := j.Limiter.Sweep(); swept > 0 {
			j.Logger.Debug("cron: swept rate limit windows", "count", swept)
		}
	}
	return nil
}

// MCPHealthJob pings the MCP servers and reconnects those that dropped.
type MCPHealthJob struct {
	Servers      MCPHealth
	Logger       *slog.Logger
	ScheduleExpr string        // empty = default "* * * * *"
	Timeout      time.Duration // empty = 30s
}

var _ Job = (*MCPHealthJob)(nil)

// Name implements Job.
func (j *MCPHealthJob) Name() string { return "mcp_health" }

// Schedule implements Job.
func (j *MCPHealthJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run checks every server. Servers still down after a reconnect attempt
// are reported as an error so the scheduler logs and reports them.
func (j *MCPHealthJob) Run(ctx context.Context) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	down := j.Servers.HealthCheck(ctx)
	if len(down) > 0 {
		return fmt.Errorf("cron: MCP servers down: %s", strings.Join(down, ", "))
	}
	return nil
}

// HistoryTrimJob caps the persisted history of every chat and reclaims
// the freed space.
type HistoryTrimJob struct {
	Store        HistoryStore
	Keep         int
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 4 * * *"
}

var _ Job = (*HistoryTrimJob)(nil)

// Name implements Job.
func (j *HistoryTrimJob) Name() string { return "history_trim" }

// Schedule implements Job.
func (j *HistoryTrimJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 4 * * *"
}

// Run trims, then vacuums when rows were removed.
func (j *HistoryTrimJob) Run(ctx context.Context) error {
	removed, err := j.Store.Trim(ctx, j.Keep)
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	j.Logger.Info("cron: trimmed history", "removed", removed, "keep", j.Keep)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: history trim cancelled: %w", err)
	}
	return j.Store.Vacuum(ctx)
}
