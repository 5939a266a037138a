// Package crontest holds fakes for the cron package and its job
// dependencies.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/tgmcp/internal/cron"
)

// Job is a cron.Job whose behaviour is set per test.
type Job struct {
	JobName string
	Expr    string
	Fn      func(ctx context.Context) error

	runs atomic.Int32
}

var _ cron.Job = (*Job)(nil)

func (j *Job) Name() string     { return j.JobName }
func (j *Job) Schedule() string { return j.Expr }

func (j *Job) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.Fn == nil {
		return nil
	}
	return j.Fn(ctx)
}

// Runs reports how many times Run was entered.
func (j *Job) Runs() int { return int(j.runs.Load()) }

// MockSessionPruner returns Pruned from every call.
type MockSessionPruner struct {
	Pruned     int
	PruneCalls atomic.Int32
}

func (m *MockSessionPruner) PruneSessions() int {
	m.PruneCalls.Add(1)
	return m.Pruned
}

// MockMCPHealth reports Down as the failing servers.
type MockMCPHealth struct {
	Down  []string
	Calls atomic.Int32
}

func (m *MockMCPHealth) HealthCheck(context.Context) []string {
	m.Calls.Add(1)
	return m.Down
}

// MockHistoryStore records the keep values it was trimmed with.
type MockHistoryStore struct {
	Removed   int64
	TrimErr   error
	VacuumErr error

	mu      sync.Mutex
	keeps   []int
	vacuums int
}

func (m *MockHistoryStore) Trim(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keeps = append(m.keeps, keep)
	return m.Removed, m.TrimErr
}

func (m *MockHistoryStore) Vacuum(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacuums++
	return m.VacuumErr
}

func (m *MockHistoryStore) Keeps() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.keeps...)
}

func (m *MockHistoryStore) Vacuums() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vacuums
}
