package redis

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/mimir/internal/memory"
)

const (
	defaultKeyPrefix   = "mimir:"
	defaultTTL         = 24 * time.Hour
	defaultDialTimeout = 5 * time.Second
)

// Config holds the Redis history module configuration.
type Config struct {
	// Addr is the Redis server address (host:port). Required.
	Addr string `yaml:"addr"`

	// Password authenticates against the server. Optional.
	Password string `yaml:"password"`

	// DB selects the Redis database number.
	DB int `yaml:"db"`

	// KeyPrefix namespaces every key. Defaults to "mimir:".
	KeyPrefix string `yaml:"key_prefix"`

	// HistoryTurns is the number of turns kept per user. Defaults to 10.
	HistoryTurns int `yaml:"history_turns"`

	// TTL expires a user's history after this long without a new turn.
	// Defaults to 24h.
	TTL time.Duration `yaml:"ttl"`

	// DialTimeout bounds the connection check at startup. Defaults to 5s.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (c *Config) defaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultKeyPrefix
	}
	if c.HistoryTurns == 0 {
		c.HistoryTurns = memory.DefaultHistoryTurns
	}
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required"))
	}
	if c.DB < 0 {
		errs = append(errs, fmt.Errorf("redis: db must be non-negative, got %d", c.DB))
	}
	if c.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("redis: history_turns must be non-negative, got %d", c.HistoryTurns))
	}
	if c.TTL < 0 {
		errs = append(errs, fmt.Errorf("redis: ttl must be non-negative, got %s", c.TTL))
	}
	return errors.Join(errs...)
}
