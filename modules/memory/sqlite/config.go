package sqlite

import "fmt"

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "mimir.db"
)

// Config holds the SQLite memory module configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/mimir.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// History stores conversation turns in the database as well. Defaults to
	// true; ignored when another module already provides the history store.
	History *bool `yaml:"history"`

	// HistoryTurns is the number of turns kept per user. Defaults to 10.
	HistoryTurns int `yaml:"history_turns"`

	// Fallback switches to in-memory stores when the database fails.
	// Defaults to true. When false, failures surface as errors.
	Fallback *bool `yaml:"fallback"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.History == nil {
		t := true
		c.History = &t
	}
	if c.HistoryTurns == 0 {
		c.HistoryTurns = defaultHistoryTurns
	}
	if c.Fallback == nil {
		t := true
		c.Fallback = &t
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) historyEnabled() bool {
	return c.History == nil || *c.History
}

func (c *Config) fallbackEnabled() bool {
	return c.Fallback == nil || *c.Fallback
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("sqlite: history_turns must be non-negative, got %d", c.HistoryTurns)
	}
	return nil
}
