// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/mimir/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockHistoryPruner is a test double for cron.HistoryPruner.
type MockHistoryPruner struct {
	PruneFunc  func(maxIdle time.Duration) (int, error)
	PruneCalls atomic.Int32
}

// Compile-time interface check.
var _ cron.HistoryPruner = (*MockHistoryPruner)(nil)

// Prune implements cron.HistoryPruner.
func (m *MockHistoryPruner) Prune(_ context.Context, maxIdle time.Duration) (int, error) {
	m.PruneCalls.Add(1)
	if m.PruneFunc != nil {
		return m.PruneFunc(maxIdle)
	}
	return 0, nil
}

// MockPinger is a test double for cron.Pinger whose result can be switched.
type MockPinger struct {
	mu  sync.Mutex
	err error
}

// Compile-time interface check.
var _ cron.Pinger = (*MockPinger)(nil)

// SetErr sets the error returned by subsequent pings.
func (m *MockPinger) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Ping implements cron.Pinger.
func (m *MockPinger) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
