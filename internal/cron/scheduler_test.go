package cron_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/flemzord/tgmcp/internal/cron"
	"github.com/flemzord/tgmcp/internal/cron/crontest"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(quietLogger())
	if err := s.RegisterJob(&crontest.Job{JobName: "session_prune", Expr: "*/10 * * * *"}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := s.RegisterJob(&crontest.Job{JobName: "session_prune", Expr: "@hourly"}); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if err := s.RegisterJob(&crontest.Job{JobName: "mcp_health", Expr: "* * * * *"}); err != nil {
		t.Fatal(err)
	}

	got := s.Jobs()
	if len(got) != 2 || got[0] != "session_prune" || got[1] != "mcp_health" {
		t.Errorf("Jobs() = %v", got)
	}
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(quietLogger())
	_ = s.RegisterJob(&crontest.Job{JobName: "history_trim", Expr: "every tuesday"})
	if err := s.Start(); err == nil {
		t.Fatal("expected an error for an unparsable schedule")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(&crontest.Job{JobName: "session_prune", Expr: "*/10 * * * *"})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := cron.NewScheduler(quietLogger()).Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_Status(t *testing.T) {
	t.Parallel()

	boom := errors.New("servers down: fs")
	s := cron.NewScheduler(quietLogger())
	_ = s.RegisterJob(&crontest.Job{JobName: "history_trim", Expr: cron.Disabled})
	_ = s.RegisterJob(&crontest.Job{JobName: "mcp_health", Expr: "* * * * *", Fn: func(context.Context) error { return boom }})
	if err := s.Start(); err != nil {
		t.Fatalf("disabled job should not fail Start: %v", err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	if err := s.RunNow(context.Background(), "mcp_health"); !errors.Is(err, boom) {
		t.Fatalf("RunNow err = %v, want %v", err, boom)
	}

	st := s.Status()
	if len(st) != 2 {
		t.Fatalf("Status() = %+v", st)
	}
	trim, health := st[0], st[1]
	if !trim.Next.IsZero() || trim.Runs != 0 {
		t.Errorf("disabled job status = %+v", trim)
	}
	if health.Next.IsZero() {
		t.Error("scheduled job has no next run")
	}
	if health.Runs != 1 || health.Failures != 1 || health.LastError != boom.Error() || health.LastRun.IsZero() {
		t.Errorf("mcp_health status = %+v", health)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	job := &crontest.Job{JobName: "session_prune", Expr: "*/10 * * * *"}
	s := cron.NewScheduler(quietLogger())
	_ = s.RegisterJob(job)

	if err := s.RunNow(context.Background(), "session_prune"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if job.Runs() != 1 {
		t.Errorf("runs = %d, want 1", job.Runs())
	}
	if err := s.RunNow(context.Background(), "ghost"); !errors.Is(err, cron.ErrUnknownJob) {
		t.Errorf("unknown job err = %v", err)
	}
}

func TestScheduler_RunNowWhileBusy(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	job := &crontest.Job{JobName: "history_trim", Expr: "0 4 * * *", Fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	s := cron.NewScheduler(quietLogger())
	_ = s.RegisterJob(job)

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "history_trim") }()
	<-started

	if st := s.Status(); !st[0].Running {
		t.Error("job not reported as running")
	}
	if err := s.RunNow(context.Background(), "history_trim"); !errors.Is(err, cron.ErrJobBusy) {
		t.Errorf("overlapping run err = %v, want ErrJobBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if job.Runs() != 1 {
		t.Errorf("runs = %d, want 1", job.Runs())
	}
}
