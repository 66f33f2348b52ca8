// Package redis provides a Redis-backed conversation history so several
// mimir instances behind a load balancer share the recent-turns buffer.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flemzord/mimir/internal/core"
	"github.com/flemzord/mimir/internal/memory"
	"github.com/flemzord/mimir/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module publishes a Redis-backed memory.HistoryStore.
type Module struct {
	config  Config
	client  *goredis.Client
	history *historyStore
	logger  *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.redis",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("redis: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if err := m.config.validate(); err != nil {
		return err
	}
	if r, ok := core.Lookup[*security.Redactor](ctx, security.RedactorService); ok {
		r.AddLiteral(m.config.Password)
	}

	m.client = goredis.NewClient(&goredis.Options{
		Addr:        m.config.Addr,
		Password:    m.config.Password,
		DB:          m.config.DB,
		DialTimeout: m.config.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	defer cancel()
	if err := m.client.Ping(pingCtx).Err(); err != nil {
		_ = m.client.Close()
		return fmt.Errorf("redis: ping %s: %w", m.config.Addr, err)
	}

	m.history = &historyStore{
		rdb:    m.client,
		prefix: m.config.KeyPrefix,
		limit:  m.config.HistoryTurns,
		ttl:    m.config.TTL,
		now:    time.Now,
	}
	ctx.RegisterService(memory.HistoryService, m.history)

	m.logger.Info("redis history provisioned",
		"addr", m.config.Addr,
		"db", m.config.DB,
		"history_turns", m.config.HistoryTurns,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.client == nil {
		return nil
	}
	m.logger.Info("redis history stopping")
	return m.client.Close()
}

// History returns the history store.
func (m *Module) History() memory.HistoryStore {
	return m.history
}
