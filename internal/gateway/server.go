package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(g.metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   g.config.CORS.AllowedOrigins,
		AllowedMethods:   g.config.CORS.AllowedMethods,
		AllowedHeaders:   g.config.CORS.AllowedHeaders,
		AllowCredentials: g.config.CORS.AllowCredentials,
		MaxAge:           g.config.CORS.MaxAge,
	}).Handler)

	r.Get("/health", g.handleHealth())
	r.Get("/status", g.handleStatus())
	if *g.config.Metrics {
		r.Handle("/metrics", g.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", g.handleChat())

		r.Get("/knowledge", g.handleListKnowledge())
		r.Get("/knowledge/{userId}", g.handleListKnowledge())
		r.Post("/knowledge/{userId}", g.handleStoreKnowledge())
		r.Get("/knowledge/{userId}/search/{query}", g.handleSearchKnowledge())
		r.Get("/knowledge/{userId}/{topic}", g.handleGetKnowledge())
		r.Delete("/knowledge/{userId}/{topic}", g.handleDeleteKnowledge())

		r.Get("/preferences/{userId}", g.handlePreferences())
		r.Get("/user/{userId}/stats", g.handleStats())

		r.Get("/history/{userId}", g.handleHistory())
		r.Delete("/history/{userId}", g.handlePurgeHistory())
	})

	if *g.config.WebSocket {
		r.Get("/ws/chat", g.handleWebSocket())
	}
	if *g.config.MCP {
		r.Handle("/mcp", g.mcpHandler())
	}
	if g.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(g.config.StaticDir)))
	}

	return r
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of failed API calls.
type errorResponse struct {
	Error string `json:"error"`
}

// pathParam returns the decoded value of a chi URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
