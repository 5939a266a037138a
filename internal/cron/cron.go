// Package cron runs the bot's housekeeping on cron schedules: idle
// session pruning, MCP server health checks and history trimming. Jobs
// can also be run on demand from the admin API.
package cron

import "context"

// Disabled turns a job off when used as its schedule.
const Disabled = "off"

// Job is one periodic task. Names must be unique within a Scheduler.
type Job interface {
	Name() string
	// Schedule is a 5-field expression, a descriptor such as "@hourly",
	// or Disabled.
	Schedule() string
	// Run must return promptly once ctx is cancelled.
	Run(ctx context.Context) error
}
