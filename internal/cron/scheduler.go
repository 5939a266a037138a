package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrorReporter receives job failures, e.g. Sentry.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

var (
	ErrUnknownJob = errors.New("cron: unknown job")
	ErrJobBusy    = errors.New("cron: job already running")
)

// JobStatus is what the admin API shows for one job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Next      time.Time `json:"next,omitzero"`
}

// entry is a registered job. Its lock keeps ticks of one job from
// overlapping; a tick that finds it held is skipped.
type entry struct {
	job  Job
	lock sync.Mutex
	id   cron.EntryID

	mu      sync.Mutex
	running bool
	runs    int
	fails   int
	lastRun time.Time
	lastErr error
}

// Scheduler runs the registered jobs on their cron schedules. Jobs are
// registered before Start.
type Scheduler struct {
	logger *slog.Logger

	mu       sync.Mutex
	entries  []*entry
	reporter ErrorReporter
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	now      func() time.Time
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, now: time.Now}
}

// SetReporter forwards job errors to r in addition to the log.
func (s *Scheduler) SetReporter(r ErrorReporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reporter = r
}

func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup(j.Name()) != nil {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.entries = append(s.entries, &entry{job: j})
	return nil
}

// lookup finds a job by name. Callers hold s.mu.
func (s *Scheduler) lookup(name string) *entry {
	for _, e := range s.entries {
		if e.job.Name() == name {
			return e
		}
	}
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.job.Name()
	}
	return names
}

// Start validates every schedule and starts the clock. Disabled jobs are
// kept for RunNow but never ticked.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New()

	active := 0
	for _, e := range s.entries {
		sched, err := ParseSchedule(e.job.Schedule())
		if err != nil {
			s.cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
		if sched == nil {
			s.logger.Info("cron: job disabled", "job", e.job.Name())
			continue
		}
		e.id = s.cron.Schedule(sched, cron.FuncJob(func() { s.tick(e) }))
		active++
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", active)
	return nil
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a 5-field expression or a descriptor such as
// "@every 5m". It returns a nil schedule for Disabled, in any case.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if strings.EqualFold(expr, Disabled) {
		return nil, nil
	}
	return parser.Parse(expr)
}

// RunNow runs a job immediately, outside its schedule, and returns its
// error. It fails with ErrJobBusy when a tick is in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e := s.lookup(name)
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if !e.lock.TryLock() {
		return fmt.Errorf("%w: %q", ErrJobBusy, name)
	}
	defer e.lock.Unlock()
	return s.execute(ctx, e)
}

func (s *Scheduler) tick(e *entry) {
	if !e.lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
		return
	}
	defer e.lock.Unlock()

	if err := s.execute(s.ctx, e); err != nil {
		s.mu.Lock()
		reporter := s.reporter
		s.mu.Unlock()
		if reporter != nil && s.ctx.Err() == nil {
			reporter.CaptureError(err, map[string]string{"job": e.job.Name()})
		}
	}
}

// execute runs the job and records the outcome. Callers hold e.lock.
func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	name := e.job.Name()
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	start := s.now()
	err := e.job.Run(ctx)

	e.mu.Lock()
	e.running = false
	e.runs++
	e.lastRun = start
	e.lastErr = err
	if err != nil {
		e.fails++
	}
	e.mu.Unlock()

	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", name, "duration", s.now().Sub(start))
	return nil
}

// Status reports every registered job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	ids := make([]cron.EntryID, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	c := s.cron
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		st := JobStatus{
			Name:     e.job.Name(),
			Schedule: e.job.Schedule(),
			Running:  e.running,
			Runs:     e.runs,
			Failures: e.fails,
			LastRun:  e.lastRun,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		if c != nil && ids[i] != 0 {
			st.Next = c.Entry(ids[i]).Next
		}
		out = append(out, st)
	}
	return out
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
