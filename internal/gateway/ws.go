package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/mimir/internal/chat"
)

// handleWebSocket is the HTTP handler for the chat websocket. Every text
// message is a chat request; every reply is a chat response.
func (g *Gateway) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The server timeouts are meant for plain requests, not long-lived
		// connections.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: g.config.CORS.originPatterns(),
		})
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()
		conn.SetReadLimit(g.config.MaxBodyBytes)

		g.metrics.wsClients.Inc()
		defer g.metrics.wsClients.Dec()

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				status := websocket.CloseStatus(err)
				if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
					g.logger.Debug("websocket read ended", "error", err)
				}
				if ctx.Err() != nil {
					_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				}
				return
			}

			var req chatRequest
			if err := json.Unmarshal(data, &req); err != nil {
				resp := fallbackReply(chat.EmptyMessageText, "invalid JSON message")
				if err := wsjson.Write(ctx, conn, resp); err != nil {
					return
				}
				continue
			}

			resp, _ := g.converse(ctx, req)
			if err := wsjson.Write(ctx, conn, resp); err != nil {
				if ctx.Err() == nil {
					g.logger.Warn("websocket write failed", "error", err)
				}
				return
			}
		}
	}
}
