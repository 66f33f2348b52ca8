// Package app provides the shared entry point for the mimir binary.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/mimir/internal/config"
	"github.com/flemzord/mimir/internal/core"
	"github.com/flemzord/mimir/internal/reload"
	"github.com/flemzord/mimir/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the data_dir setting and the default data directory.
	DataDir string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// ReloadPoll additionally re-reads the config file on this interval,
	// for mounts that deliver no filesystem events. Zero relies on events
	// alone; negative disables watching. SIGHUP always triggers a reload.
	ReloadPoll time.Duration
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled or SIGINT/SIGTERM is received. SIGHUP and edits to the config
// file reload modules that implement core.Reloader. Modules are stopped in
// reverse order before Run returns.
func Run(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor()
	logger, err := NewLogger(cfg.Log, out, redactor)
	if err != nil {
		return err
	}

	application, ids, err := build(cfg, logger, redactor, params.DataDir)
	if err != nil {
		return err
	}

	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("mimir started",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"modules", len(ids),
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan struct{}
	if params.ReloadPoll >= 0 {
		watcher := reload.NewWatcher(cfgPath, params.ReloadPoll, logger)
		go watcher.Run(sigCtx)
		changes = watcher.Changes()
	}
	handler := reload.NewHandler(application, logger)

	for {
		select {
		case <-sigCtx.Done():
			logger.Info("shutdown signal received")
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case <-hup:
			logger.Info("SIGHUP received, reloading configuration")
			if err := handler.Reload(sigCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		case <-changes:
			logger.Info("config file changed, reloading", "path", cfgPath)
			if err := handler.Reload(sigCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// Check loads and validates the configuration at path, then provisions
// and validates every module without starting any. It returns the module
// IDs in load order.
func Check(path string, logger *slog.Logger) ([]string, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	application, ids, err := build(cfg, logger, security.NewRedactor(), "")
	if err != nil {
		return nil, err
	}
	application.Close()
	return ids, nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// build creates the application context and loads modules in resolved order.
func build(cfg *config.Config, logger *slog.Logger, redactor *security.Redactor, dataDir string) (*core.App, []string, error) {
	dataDir = resolveDataDir(dataDir, cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating data dir: %w", err)
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(security.RedactorService, redactor)
	application := core.NewApp(appCtx)

	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return nil, nil, err
	}
	return application, ids, nil
}

// NewLogger builds the process logger from the log section. Records pass
// through redactor, so secrets registered by modules never reach w.
func NewLogger(cfg config.LogConfig, w io.Writer, redactor *security.Redactor) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.JSON() {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

func resolveDataDir(override, configured string) string {
	switch {
	case override != "":
		return override
	case configured != "":
		return configured
	default:
		return DefaultDataDir()
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/mimir/mimir.yaml → ~/.config/mimir/mimir.yaml → ./mimir.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "mimir", "mimir.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mimir", "mimir.yaml"))
	}

	candidates = append(candidates, "mimir.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/mimir if set, otherwise ~/.local/share/mimir.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "mimir")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "mimir")
}
