package chat

import (
	"fmt"

	"github.com/flemzord/mimir/internal/core"
	"github.com/flemzord/mimir/internal/memory"
	"gopkg.in/yaml.v3"
)

// ServiceName is the name the engine is published under.
const ServiceName = "chat.engine"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Reloader     = (*Module)(nil)
)

// ModuleConfig holds the chat.engine module configuration.
type ModuleConfig struct {
	// HistoryTurns is the number of turns kept per user. Defaults to 10.
	HistoryTurns int `yaml:"history_turns"`

	// KnowledgeIntegrationRate is the probability of answering with a known
	// fact mentioned in the message. Defaults to 0.3.
	KnowledgeIntegrationRate *float64 `yaml:"knowledge_integration_rate"`

	// FollowUpRate is the probability of appending a follow-up question.
	// Defaults to 0.7.
	FollowUpRate *float64 `yaml:"follow_up_rate"`

	// MaxFactsPerUser bounds the in-memory knowledge store used when no
	// persistent backend is loaded. Defaults to 1000.
	MaxFactsPerUser int `yaml:"max_facts_per_user"`
}

func (c *ModuleConfig) defaults() {
	if c.HistoryTurns == 0 {
		c.HistoryTurns = memory.DefaultHistoryTurns
	}
	if c.KnowledgeIntegrationRate == nil {
		r := DefaultIntegrationRate
		c.KnowledgeIntegrationRate = &r
	}
	if c.FollowUpRate == nil {
		r := DefaultFollowUpRate
		c.FollowUpRate = &r
	}
	if c.MaxFactsPerUser == 0 {
		c.MaxFactsPerUser = memory.DefaultMaxFactsPerUser
	}
}

func (c *ModuleConfig) validate() error {
	if c.HistoryTurns < 0 {
		return fmt.Errorf("chat: history_turns must be non-negative, got %d", c.HistoryTurns)
	}
	if r := *c.KnowledgeIntegrationRate; r < 0 || r > 1 {
		return fmt.Errorf("chat: knowledge_integration_rate must be within [0, 1], got %g", r)
	}
	if r := *c.FollowUpRate; r < 0 || r > 1 {
		return fmt.Errorf("chat: follow_up_rate must be within [0, 1], got %g", r)
	}
	if c.MaxFactsPerUser < 0 {
		return fmt.Errorf("chat: max_facts_per_user must be non-negative, got %d", c.MaxFactsPerUser)
	}
	return nil
}

// Module wires an Engine to whichever memory backends are loaded.
type Module struct {
	config ModuleConfig
	engine *Engine
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ServiceName,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("chat: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. Stores published by memory
// modules are used when present; otherwise in-memory stores are created
// and published so other modules share them.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()

	knowledge, ok := core.Lookup[memory.Store](ctx, memory.KnowledgeService)
	if !ok {
		knowledge = memory.NewInMemoryStore(m.config.MaxFactsPerUser)
		ctx.RegisterService(memory.KnowledgeService, knowledge)
		ctx.Logger.Warn("no persistent knowledge store loaded, facts are kept in memory")
	}

	prefs, ok := core.Lookup[memory.PreferenceStore](ctx, memory.PreferencesService)
	if !ok {
		prefs = memory.NewInMemoryPreferenceStore()
		ctx.RegisterService(memory.PreferencesService, prefs)
	}

	history, ok := core.Lookup[memory.HistoryStore](ctx, memory.HistoryService)
	if !ok {
		history = memory.NewInMemoryHistoryStore(m.config.HistoryTurns)
		ctx.RegisterService(memory.HistoryService, history)
	}

	m.engine = NewEngine(Config{
		Knowledge:       knowledge,
		Preferences:     prefs,
		History:         history,
		Composer:        NewComposer(nil, *m.config.FollowUpRate),
		IntegrationRate: m.config.KnowledgeIntegrationRate,
		HistoryTurns:    m.config.HistoryTurns,
		Logger:          ctx.Logger,
	})
	ctx.RegisterService(ServiceName, m.engine)

	ctx.Logger.Info("chat engine provisioned",
		"history_turns", m.config.HistoryTurns,
		"knowledge_integration_rate", *m.config.KnowledgeIntegrationRate,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Engine returns the provisioned engine.
func (m *Module) Engine() *Engine {
	return m.engine
}

// Reload implements core.Reloader. The integration and follow-up rates
// apply immediately; history and capacity settings need a restart.
func (m *Module) Reload(ctx *core.AppContext) error {
	var next ModuleConfig
	if node, ok := ctx.ModuleConfig(ServiceName); ok {
		if err := node.Decode(&next); err != nil {
			return fmt.Errorf("chat: decode config: %w", err)
		}
	}
	next.defaults()
	if err := next.validate(); err != nil {
		return err
	}

	if next.HistoryTurns != m.config.HistoryTurns || next.MaxFactsPerUser != m.config.MaxFactsPerUser {
		ctx.Logger.Warn("history_turns and max_facts_per_user changes take effect after a restart")
	}

	m.engine.SetRates(*next.KnowledgeIntegrationRate, *next.FollowUpRate)
	m.config.KnowledgeIntegrationRate = next.KnowledgeIntegrationRate
	m.config.FollowUpRate = next.FollowUpRate

	ctx.Logger.Info("chat engine reloaded",
		"knowledge_integration_rate", *next.KnowledgeIntegrationRate,
		"follow_up_rate", *next.FollowUpRate,
	)
	return nil
}
