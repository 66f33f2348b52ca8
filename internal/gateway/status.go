package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   float64         `json:"uptime_seconds"`
	Metrics  MetricsSnapshot `json:"metrics"`
	Database string          `json:"database"`
	Degraded bool            `json:"degraded"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Metrics:  g.metrics.Snapshot(),
			Database: "disconnected",
			Degraded: g.degraded(),
		}
		if g.databaseConnected(r.Context()) {
			resp.Database = "connected"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
