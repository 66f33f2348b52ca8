// Package gateway exposes the chat engine over HTTP: the chat and knowledge
// API, a websocket chat channel, an MCP tool server, health, status and
// Prometheus metrics. It follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/mimir/internal/chat"
	"github.com/flemzord/mimir/internal/core"
)

// MetricsService is the name the gateway metrics are published under.
const MetricsService = "gateway.metrics"

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP gateway module. It is a leaf module, nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	startedAt time.Time

	// baseCtx outlives requests so hijacked websocket connections end on Stop.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// Resolved lazily at Start() via service registry.
	engine *chat.Engine
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()

	// Register services for cross-module discovery.
	ctx.RegisterService(MetricsService, g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves the chat engine from the
// service registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	engine, ok := core.Lookup[*chat.Engine](g.appCtx, chat.ServiceName)
	if !ok {
		return errors.New("gateway: chat engine not loaded (add chat.engine to modules)")
	}
	g.engine = engine
	g.startedAt = time.Now()
	g.baseCtx, g.cancelBase = context.WithCancel(context.Background())

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return g.baseCtx },
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		g.cancelBase()
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	g.cancelBase()
	return g.server.Shutdown(shutdownCtx)
}
