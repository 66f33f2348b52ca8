package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/mimir/internal/chat"
	"github.com/flemzord/mimir/internal/core"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}

	mod := info.New()
	if _, ok := mod.(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	node := mustYAMLNode(t, "{}")
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:4000" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", g.config.ReadTimeout)
	}
	if g.config.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want 30s", g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
	if g.config.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d, want 1MiB", g.config.MaxBodyBytes)
	}
	if got := g.config.CORS.AllowedOrigins; len(got) != 1 || got[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [*]", got)
	}
	if !*g.config.MCP || !*g.config.WebSocket || !*g.config.Metrics {
		t.Error("mcp, websocket and metrics should default to enabled")
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
read_timeout: 5s
write_timeout: 15s
shutdown_timeout: 10s
mcp: false
cors:
  allowed_origins: ["https://chat.example.com"]
`)

	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" {
		t.Errorf("Bind = %q, want custom", g.config.Bind)
	}
	if *g.config.MCP {
		t.Error("MCP should be disabled")
	}
	if !*g.config.WebSocket {
		t.Error("WebSocket should keep its default")
	}
	if got := g.config.CORS.originPatterns(); len(got) != 1 || got[0] != "chat.example.com" {
		t.Errorf("originPatterns = %v, want [chat.example.com]", got)
	}
}

func TestGateway_Provision(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())

	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if g.metrics == nil {
		t.Error("metrics should be initialized")
	}
	if g.config.Bind == "" {
		t.Error("defaults should apply without a config section")
	}
	if _, ok := core.Lookup[*Metrics](appCtx, MetricsService); !ok {
		t.Error("gateway.metrics not registered")
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad bind", mutate: func(c *Config) { c.Bind = "not-an-address" }, wantErr: true},
		{name: "missing static dir", mutate: func(c *Config) { c.StaticDir = "/does/not/exist" }, wantErr: true},
		{name: "negative max age", mutate: func(c *Config) { c.CORS.MaxAge = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{}
			g.config.defaults()
			tt.mutate(&g.config)
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doGet makes a GET request with context.
func doGet(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	appCtx.RegisterService(chat.ServiceName, chat.NewEngine(chat.Config{}))

	g := &Gateway{}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	g.config.Bind = addr

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := doGet(t, "http://"+addr+"/health")
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "online" {
		t.Errorf("health.Status = %q, want %q", health.Status, "online")
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_StartWithoutEngine(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Provision(core.NewAppContext(discardLogger(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.Start(); err == nil {
		t.Fatal("Start should fail when chat.engine is not loaded")
	}
}

func TestGateway_StopNilServer(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop on nil server should not error: %v", err)
	}
}

func TestGateway_OptionalRoutes(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, chat.Config{})
	off := false
	g.config.MCP = &off
	g.config.Metrics = &off
	g.config.WebSocket = &off
	h := g.buildRouter()

	for _, path := range []string{"/mcp", "/metrics", "/ws/chat"} {
		rr := do(t, h, http.MethodGet, path, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404 when disabled", path, rr.Code)
		}
	}
}

func TestGateway_StaticDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>mimir</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := newTestGateway(t, chat.Config{})
	g.config.StaticDir = dir

	rr := do(t, g.buildRouter(), http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "mimir") {
		t.Errorf("GET / = %d %q", rr.Code, rr.Body.String())
	}
}

func TestGateway_CORSPreflight(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, chat.Config{})
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

// newTestGateway returns a gateway wired to an in-memory engine without
// follow-ups or knowledge integration, so replies are predictable.
func newTestGateway(t *testing.T, cfg chat.Config) *Gateway {
	t.Helper()
	logger := discardLogger()
	if cfg.Composer == nil {
		cfg.Composer = chat.NewComposer(rand.New(rand.NewPCG(1, 2)), 0)
	}
	if cfg.IntegrationRate == nil {
		zero := 0.0
		cfg.IntegrationRate = &zero
	}
	cfg.Logger = logger

	g := &Gateway{
		logger:    logger,
		metrics:   NewMetrics(),
		startedAt: time.Now(),
		engine:    chat.NewEngine(cfg),
	}
	g.config.defaults()
	return g
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
