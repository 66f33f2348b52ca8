package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string        `yaml:"bind"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes bounds request bodies and websocket messages.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	CORS CORSConfig `yaml:"cors"`

	// StaticDir, when set, is served at / (the browser chat UI).
	StaticDir string `yaml:"static_dir"`

	// MCP mounts the tool server at /mcp. Defaults to true.
	MCP *bool `yaml:"mcp"`

	// WebSocket mounts the chat channel at /ws/chat. Defaults to true.
	WebSocket *bool `yaml:"websocket"`

	// Metrics mounts the Prometheus endpoint at /metrics. Defaults to true.
	Metrics *bool `yaml:"metrics"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:4000"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Content-Type", "Accept", "Mcp-Session-Id"}
	}
	c.MCP = orTrue(c.MCP)
	c.WebSocket = orTrue(c.WebSocket)
	c.Metrics = orTrue(c.Metrics)
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, errors.New("gateway: invalid bind address: "+c.Bind))
	}
	if c.StaticDir != "" {
		info, err := os.Stat(c.StaticDir)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("gateway: static_dir: %w", err))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("gateway: static_dir %q is not a directory", c.StaticDir))
		}
	}
	if c.CORS.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("gateway: cors.max_age must be non-negative, got %d", c.CORS.MaxAge))
	}
	return errors.Join(errs...)
}

// originPatterns converts the CORS origins into host patterns for the
// websocket origin check.
func (c CORSConfig) originPatterns() []string {
	patterns := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

func orTrue(b *bool) *bool {
	if b != nil {
		return b
	}
	v := true
	return &v
}
