package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/mimir/internal/core"
	"github.com/flemzord/mimir/internal/memory"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the scheduler.cron module configuration.
type Config struct {
	// HistoryPrune is the schedule of the history pruning job.
	HistoryPrune string `yaml:"history_prune"`

	// HistoryMaxIdle is how long a user may stay silent before their
	// conversation history is dropped. Defaults to 1h.
	HistoryMaxIdle time.Duration `yaml:"history_max_idle"`

	// StoreProbe is the schedule of the store reachability probe.
	StoreProbe string `yaml:"store_probe"`
}

func (c *Config) defaults() {
	if c.HistoryPrune == "" {
		c.HistoryPrune = "*/10 * * * *"
	}
	if c.HistoryMaxIdle == 0 {
		c.HistoryMaxIdle = time.Hour
	}
	if c.StoreProbe == "" {
		c.StoreProbe = "@every 1m"
	}
}

func (c *Config) validate() error {
	var errs []error
	if err := ParseSchedule(c.HistoryPrune); err != nil {
		errs = append(errs, fmt.Errorf("cron: history_prune: %w", err))
	}
	if err := ParseSchedule(c.StoreProbe); err != nil {
		errs = append(errs, fmt.Errorf("cron: store_probe: %w", err))
	}
	if c.HistoryMaxIdle < 0 {
		errs = append(errs, fmt.Errorf("cron: history_max_idle must be positive, got %s", c.HistoryMaxIdle))
	}
	return errors.Join(errs...)
}

// Module runs the maintenance jobs against the stores published by the
// memory and chat modules.
type Module struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "scheduler.cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.appCtx = ctx
	m.logger = ctx.Logger
	m.scheduler = NewScheduler(ctx.Logger)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter. Stores are resolved here because the
// modules publishing them may be provisioned after this one.
func (m *Module) Start() error {
	if history, ok := core.Lookup[memory.HistoryStore](m.appCtx, memory.HistoryService); ok {
		if err := m.scheduler.RegisterJob(&HistoryPruneJob{
			Store:        history,
			MaxIdle:      m.config.HistoryMaxIdle,
			Logger:       m.logger,
			ScheduleExpr: m.config.HistoryPrune,
		}); err != nil {
			return err
		}
	} else {
		m.logger.Warn("no history store loaded, history pruning disabled")
	}

	stores := make(map[string]Pinger)
	for _, name := range []string{memory.KnowledgeService, memory.PreferencesService} {
		if p, ok := core.Lookup[Pinger](m.appCtx, name); ok {
			stores[name] = p
		}
	}
	if len(stores) > 0 {
		if err := m.scheduler.RegisterJob(&StoreProbeJob{
			Stores:       stores,
			Logger:       m.logger,
			ScheduleExpr: m.config.StoreProbe,
		}); err != nil {
			return err
		}
	}

	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// Scheduler returns the module's scheduler.
func (m *Module) Scheduler() *Scheduler {
	return m.scheduler
}
