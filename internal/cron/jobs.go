package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// HistoryPruner is the subset of memory.HistoryStore needed by cron jobs.
type HistoryPruner interface {
	Prune(ctx context.Context, maxIdle time.Duration) (int, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HistoryPruneJob drops the conversation history of users idle longer than MaxIdle.
type HistoryPruneJob struct {
	Store        HistoryPruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*HistoryPruneJob)(nil)

// Name implements Job.
func (j *HistoryPruneJob) Name() string { return "history_prune" }

// Schedule implements Job.
func (j *HistoryPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run prunes idle histories.
func (j *HistoryPruneJob) Run(ctx context.Context) error {
	pruned, err := j.Store.Prune(ctx, j.MaxIdle)
	if err != nil {
		return fmt.Errorf("cron: prune history: %w", err)
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned idle conversation history", "users", pruned, "max_idle", j.MaxIdle)
	}
	return nil
}

// StoreProbeJob pings the persistent stores and logs state changes, so an
// outage and its recovery show up in the logs even when no one is chatting.
type StoreProbeJob struct {
	Stores       map[string]Pinger
	Timeout      time.Duration // zero = 5s
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "@every 1m"

	down map[string]bool
}

// Compile-time interface check.
var _ Job = (*StoreProbeJob)(nil)

// Name implements Job.
func (j *StoreProbeJob) Name() string { return "store_probe" }

// Schedule implements Job.
func (j *StoreProbeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 1m"
}

// Run pings every store and returns the joined failures. Runs never overlap,
// so the state map needs no locking.
func (j *StoreProbeJob) Run(ctx context.Context) error {
	if j.down == nil {
		j.down = make(map[string]bool)
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var errs []error
	for name, store := range j.Stores {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := store.Ping(pingCtx)
		cancel()

		switch {
		case err != nil:
			if !j.down[name] {
				j.Logger.Warn("cron: store unreachable", "store", name, "error", err)
			}
			j.down[name] = true
			errs = append(errs, fmt.Errorf("cron: ping %s: %w", name, err))
		case j.down[name]:
			j.Logger.Info("cron: store reachable again", "store", name)
			j.down[name] = false
		}
	}
	return errors.Join(errs...)
}
