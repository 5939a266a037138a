package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/flemzord/tgmcp/internal/security"
)

// SentryConfig configures error reporting.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64

	// Redactor, if set, masks secrets in reported messages.
	Redactor *security.Redactor
}

// Sentry forwards errors to Sentry. A nil *Sentry drops everything.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry returns nil when no DSN is configured.
func NewSentry(cfg SentryConfig) (*Sentry, error) {
	return newSentry(cfg, nil)
}

func newSentry(cfg SentryConfig, after func(*sentry.Event) *sentry.Event) (*Sentry, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  cfg.SampleRate,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			// Chat users are identified by tags only.
			event.User = sentry.User{}
			if cfg.Redactor != nil {
				event.Message = cfg.Redactor.Redact(event.Message)
				for i := range event.Exception {
					event.Exception[i].Value = cfg.Redactor.Redact(event.Exception[i].Value)
				}
			}
			if after != nil {
				return after(event)
			}
			return event
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: sentry client: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// CaptureError reports err with tags attached to the event.
func (s *Sentry) CaptureError(err error, tags map[string]string) {
	if s == nil || err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

// CaptureMessage reports a message at the given level.
func (s *Sentry) CaptureMessage(msg string, level sentry.Level, tags map[string]string) {
	if s == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureMessage(msg)
	})
}

// Recover reports a recovered panic value and returns it.
func (s *Sentry) Recover(r any) any {
	if s != nil && r != nil {
		s.hub.Recover(r)
	}
	return r
}

// Flush waits for queued events to be sent.
func (s *Sentry) Flush(timeout time.Duration) bool {
	if s == nil {
		return true
	}
	return s.hub.Flush(timeout)
}
