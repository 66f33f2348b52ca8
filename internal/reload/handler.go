package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/flemzord/mimir/internal/config"
	"github.com/flemzord/mimir/internal/core"
)

// ErrRestartRequired is returned when the new configuration loads a
// different set of modules than the running application.
var ErrRestartRequired = errors.New("reload: module set changed, restart required")

// Handler reloads application configuration and notifies modules.
type Handler struct {
	mu     sync.Mutex
	app    *core.App
	logger *slog.Logger
}

// NewHandler creates a reload handler for app.
func NewHandler(app *core.App, logger *slog.Logger) *Handler {
	return &Handler{app: app, logger: logger}
}

// Reload loads a fresh config from path, validates it, and calls Reload
// on all modules that implement core.Reloader. The running configuration
// stays in effect when any step fails.
func (h *Handler) Reload(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	want, have := config.Resolve(cfg), h.app.ModuleIDs()
	if !slices.Equal(want, have) {
		return fmt.Errorf("%w (running %v, configured %v)", ErrRestartRequired, have, want)
	}

	next := core.NewAppContext(h.logger, "").WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(next); err != nil {
		return err
	}

	h.logger.Info("configuration reloaded", "path", path)
	return nil
}
