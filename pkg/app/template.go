package app

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Storage backends offered by the init wizard.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// InitOptions are the answers collected by `mimir init`.
type InitOptions struct {
	Bind            string
	Storage         string
	DatabasePath    string
	RedisAddr       string
	TracingEndpoint string
	MCP             bool
	Metrics         bool
	LogFormat       string
}

type templateConfig struct {
	Version string         `yaml:"version"`
	Log     templateLog    `yaml:"log"`
	Modules map[string]any `yaml:"modules"`
}

type templateLog struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RenderConfig produces a mimir.yaml for the given answers.
func RenderConfig(opts InitOptions) ([]byte, error) {
	modules := map[string]any{
		"chat.engine": map[string]any{
			"history_turns":              10,
			"knowledge_integration_rate": 0.3,
			"follow_up_rate":             0.7,
		},
		"gateway.http": map[string]any{
			"bind":    opts.Bind,
			"mcp":     opts.MCP,
			"metrics": opts.Metrics,
		},
		"scheduler.cron": map[string]any{
			"history_prune":    "*/10 * * * *",
			"history_max_idle": "1h",
		},
	}

	switch opts.Storage {
	case StorageMemory:
	case StorageSQLite:
		section := map[string]any{}
		if opts.DatabasePath != "" {
			section["path"] = opts.DatabasePath
		}
		modules["memory.sqlite"] = section
	default:
		return nil, fmt.Errorf("unknown storage %q", opts.Storage)
	}

	if opts.RedisAddr != "" {
		modules["memory.redis"] = map[string]any{
			"addr":     opts.RedisAddr,
			"password": "${MIMIR_REDIS_PASSWORD:-}",
		}
	}
	if opts.TracingEndpoint != "" {
		modules["telemetry.otel"] = map[string]any{"endpoint": opts.TracingEndpoint}
	}

	format := opts.LogFormat
	if format == "" {
		format = "text"
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(templateConfig{
		Version: "1",
		Log:     templateLog{Level: "info", Format: format},
		Modules: modules,
	}); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}
