// Package sqlite implements a persistent SQLite-backed memory module
// providing the knowledge, preference and history stores. It uses
// modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/flemzord/mimir/internal/core"
	"github.com/flemzord/mimir/internal/memory"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ memory.Store           = (*factStore)(nil)
	_ memory.PreferenceStore = (*preferenceStore)(nil)
	_ memory.HistoryStore    = (*historyStore)(nil)
	_ core.Configurable      = (*Module)(nil)
	_ core.Provisioner       = (*Module)(nil)
	_ core.Validator         = (*Module)(nil)
	_ core.Stopper           = (*Module)(nil)
)

// Module implements a SQLite-backed memory module. All stores share a
// single database.
type Module struct {
	config Config
	db     *sql.DB
	logger *slog.Logger

	knowledge   memory.Store
	preferences memory.PreferenceStore
	history     *historyStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := openDB(context.TODO(), m.config.Path, m.config.walEnabled(), m.config.BusyTimeout)
	if err != nil {
		return err
	}
	m.db = db

	var (
		facts = &factStore{db: db, now: time.Now}
		prefs = &preferenceStore{db: db, now: time.Now}
	)
	m.knowledge, m.preferences = facts, prefs
	if m.config.fallbackEnabled() {
		m.knowledge = memory.NewFallbackStore(facts, memory.NewInMemoryStore(memory.DefaultMaxFactsPerUser), ctx.Logger)
		m.preferences = memory.NewFallbackPreferenceStore(prefs, memory.NewInMemoryPreferenceStore(), ctx.Logger)
	}

	ctx.RegisterService(memory.KnowledgeService, m.knowledge)
	ctx.RegisterService(memory.PreferencesService, m.preferences)

	if m.config.historyEnabled() {
		if _, taken := ctx.Service(memory.HistoryService); taken {
			m.logger.Info("history store already provided, keeping conversation turns out of sqlite")
		} else {
			m.history = &historyStore{db: db, limit: m.config.HistoryTurns, now: time.Now}
			ctx.RegisterService(memory.HistoryService, m.history)
		}
	}

	m.logger.Info("sqlite memory module provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"fallback", m.config.fallbackEnabled(),
		"history", m.history != nil,
	)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}

	if err := m.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(context.TODO(), "SELECT count(*) FROM facts").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: facts table not available: %w", err)
	}

	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite memory module stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Knowledge returns the knowledge store, wrapped in the in-memory fallback
// unless fallback is disabled.
func (m *Module) Knowledge() memory.Store {
	return m.knowledge
}

// Preferences returns the preference store.
func (m *Module) Preferences() memory.PreferenceStore {
	return m.preferences
}
