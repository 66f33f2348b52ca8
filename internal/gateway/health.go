package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/flemzord/mimir/internal/memory"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"` // "connected" or "disconnected"
	Degraded  bool      `json:"degraded"`
	Timestamp time.Time `json:"timestamp"`
}

// degradable is implemented by the fallback stores.
type degradable interface {
	Degraded() bool
}

// handleHealth returns an http.HandlerFunc for GET /health. The process is
// live whenever it answers, so the status code is always 200; storage
// problems are reported in the body.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "online",
			Database:  "disconnected",
			Degraded:  g.degraded(),
			Timestamp: time.Now().UTC(),
		}
		if g.databaseConnected(r.Context()) {
			resp.Database = "connected"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// degraded reports whether any store fell back to process memory.
func (g *Gateway) degraded() bool {
	if g.engine == nil {
		return false
	}
	for _, s := range []any{g.engine.Knowledge(), g.engine.Preferences()} {
		if d, ok := s.(degradable); ok && d.Degraded() {
			return true
		}
	}
	return false
}

// databaseConnected reports whether facts are served by a reachable
// persistent backend.
func (g *Gateway) databaseConnected(ctx context.Context) bool {
	if g.engine == nil {
		return false
	}
	store := g.engine.Knowledge()
	if _, ok := store.(*memory.InMemoryStore); ok {
		return false
	}
	if d, ok := store.(degradable); ok && d.Degraded() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return store.Ping(ctx) == nil
}
