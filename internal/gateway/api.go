package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/mimir/internal/chat"
	"github.com/flemzord/mimir/internal/memory"
)

// chatRequest is the body of POST /api/chat and of websocket messages.
type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// chatResponse is the chat reply sent to clients.
type chatResponse struct {
	Response      string         `json:"response"`
	TypingDelayMs int64          `json:"typingDelayMs"`
	Category      chat.Category  `json:"category,omitempty"`
	Sentiment     chat.Sentiment `json:"sentiment,omitempty"`
	Kind          chat.Kind      `json:"kind,omitempty"`
	Learned       []memory.Fact  `json:"learned,omitempty"`
	Recalled      []memory.Fact  `json:"recalled,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Error         string         `json:"error,omitempty"`
}

// fallbackDelay is the typing delay of replies that never reached the engine.
const fallbackDelay = time.Second

// converse runs one message through the engine and returns the response
// with its HTTP status. It is shared by the HTTP and websocket channels.
func (g *Gateway) converse(ctx context.Context, req chatRequest) (chatResponse, int) {
	start := time.Now()
	reply, err := g.engine.Handle(ctx, req.UserID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return fallbackReply(chat.EmptyMessageText, "message is required"), http.StatusBadRequest
	case err != nil:
		g.metrics.RecordError()
		g.logger.Error("chat failed", "user_id", req.UserID, "error", err)
		return fallbackReply(chat.ErrorText, "internal error"), http.StatusInternalServerError
	}

	g.metrics.RecordReply(string(reply.Category), string(reply.Kind), len(reply.Learned), time.Since(start))
	return chatResponse{
		Response:      reply.Text,
		TypingDelayMs: reply.TypingDelay.Milliseconds(),
		Category:      reply.Category,
		Sentiment:     reply.Sentiment,
		Kind:          reply.Kind,
		Learned:       reply.Learned,
		Recalled:      reply.Recalled,
		Timestamp:     reply.Timestamp,
	}, http.StatusOK
}

// fallbackReply is a chat response that never reached the engine.
func fallbackReply(text, errMsg string) chatResponse {
	return chatResponse{
		Response:      text,
		TypingDelayMs: fallbackDelay.Milliseconds(),
		Timestamp:     time.Now().UTC(),
		Error:         errMsg,
	}
}

// handleChat answers POST /api/chat. Unreadable bodies still get a chat
// reply so clients can render something.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if status, msg := g.readJSON(w, r, &req); status != 0 {
			writeJSON(w, status, fallbackReply(chat.EmptyMessageText, msg))
			return
		}
		resp, status := g.converse(r.Context(), req)
		writeJSON(w, status, resp)
	}
}

// userID returns the {userId} path parameter, or the default user.
func userID(r *http.Request) string {
	if id := strings.TrimSpace(pathParam(r, "userId")); id != "" {
		return id
	}
	return chat.DefaultUserID
}

// knowledgeListResponse is the JSON response for GET /api/knowledge/{userId}.
type knowledgeListResponse struct {
	Knowledge         []memory.Fact `json:"knowledge"`
	TotalItems        int           `json:"totalItems"`
	DatabaseConnected bool          `json:"databaseConnected"`
}

func (g *Gateway) handleListKnowledge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userID(r)
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
				return
			}
			limit = n
		}

		store := g.engine.Knowledge()
		facts, err := store.List(r.Context(), user, limit)
		if err != nil {
			g.internalError(w, "list knowledge", err)
			return
		}
		total, err := store.Count(r.Context(), user)
		if err != nil {
			g.internalError(w, "count knowledge", err)
			return
		}
		writeJSON(w, http.StatusOK, knowledgeListResponse{
			Knowledge:         nonNilFacts(facts),
			TotalItems:        total,
			DatabaseConnected: g.databaseConnected(r.Context()),
		})
	}
}

func (g *Gateway) handleGetKnowledge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fact, err := g.engine.Knowledge().Get(r.Context(), userID(r), pathParam(r, "topic"))
		switch {
		case errors.Is(err, memory.ErrFactNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Knowledge not found"})
		case err != nil:
			g.internalError(w, "get knowledge", err)
		default:
			writeJSON(w, http.StatusOK, fact)
		}
	}
}

// factRequest is the body of POST /api/knowledge/{userId}.
type factRequest struct {
	Topic    string   `json:"topic"`
	Fact     string   `json:"fact"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Examples []string `json:"examples"`
}

// mutationResponse reports the outcome of a write.
type mutationResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Knowledge *memory.Fact `json:"knowledge,omitempty"`
}

func (g *Gateway) handleStoreKnowledge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req factRequest
		if !g.decode(w, r, &req) {
			return
		}
		user := userID(r)
		res, err := g.engine.Knowledge().Upsert(r.Context(), user, memory.FactInput{
			Topic:    req.Topic,
			Fact:     req.Fact,
			Category: req.Category,
			Tags:     req.Tags,
			Examples: req.Examples,
		})
		switch {
		case errors.Is(err, memory.ErrInvalidFact):
			writeJSON(w, http.StatusBadRequest, mutationResponse{Message: "topic and fact are required"})
			return
		case err != nil:
			g.internalError(w, "store knowledge", err)
			return
		}

		if res.Updated {
			writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "Knowledge updated", Knowledge: &res.Fact})
			return
		}
		if err := g.engine.Preferences().IncrementLearned(r.Context(), user); err != nil {
			g.logger.Warn("increment learned facts failed", "user_id", user, "error", err)
		}
		writeJSON(w, http.StatusCreated, mutationResponse{Success: true, Message: "Knowledge stored", Knowledge: &res.Fact})
	}
}

func (g *Gateway) handleDeleteKnowledge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := g.engine.Knowledge().Delete(r.Context(), userID(r), pathParam(r, "topic"))
		switch {
		case errors.Is(err, memory.ErrFactNotFound):
			writeJSON(w, http.StatusNotFound, mutationResponse{Message: "Knowledge not found"})
		case err != nil:
			g.internalError(w, "delete knowledge", err)
		default:
			writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "Knowledge deleted"})
		}
	}
}

// searchResponse is the JSON response for knowledge search.
type searchResponse struct {
	Query   string        `json:"query"`
	Results []memory.Fact `json:"results"`
}

func (g *Gateway) handleSearchKnowledge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := pathParam(r, "query")
		facts, err := g.engine.Knowledge().Search(r.Context(), userID(r), query)
		if err != nil {
			g.internalError(w, "search knowledge", err)
			return
		}
		writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: nonNilFacts(facts)})
	}
}

// preferencesResponse is the JSON response for GET /api/preferences/{userId}.
type preferencesResponse struct {
	Preferences map[string]string `json:"preferences"`
}

func (g *Gateway) handlePreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := g.engine.Preferences().Get(r.Context(), userID(r))
		if err != nil && !errors.Is(err, memory.ErrPreferencesNotFound) {
			g.internalError(w, "get preferences", err)
			return
		}
		values := prefs.Values
		if values == nil {
			values = map[string]string{}
		}
		writeJSON(w, http.StatusOK, preferencesResponse{Preferences: values})
	}
}

func (g *Gateway) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := g.engine.Stats(r.Context(), userID(r))
		if err != nil {
			g.internalError(w, "user stats", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// historyResponse is the JSON response for GET /api/history/{userId}.
type historyResponse struct {
	UserID string        `json:"userId"`
	Turns  []memory.Turn `json:"turns"`
}

func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userID(r)
		turns, err := g.engine.History(r.Context(), user)
		if err != nil {
			g.internalError(w, "history", err)
			return
		}
		if turns == nil {
			turns = []memory.Turn{}
		}
		writeJSON(w, http.StatusOK, historyResponse{UserID: user, Turns: turns})
	}
}

func (g *Gateway) handlePurgeHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.engine.HistoryStore().Purge(r.Context(), userID(r)); err != nil {
			g.internalError(w, "purge history", err)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "History cleared"})
	}
}

// readJSON reads a JSON body into v. On failure it returns the status and
// message to answer with; status is 0 on success.
func (g *Gateway) readJSON(w http.ResponseWriter, r *http.Request, v any) (int, string) {
	body := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, "request body too large"
		}
		return http.StatusBadRequest, "invalid JSON body"
	}
	return 0, ""
}

// decode reads a JSON body into v, answering with an error on failure.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if status, msg := g.readJSON(w, r, v); status != 0 {
		writeJSON(w, status, errorResponse{Error: msg})
		return false
	}
	return true
}

func (g *Gateway) internalError(w http.ResponseWriter, op string, err error) {
	g.logger.Error("api request failed", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func nonNilFacts(facts []memory.Fact) []memory.Fact {
	if facts == nil {
		return []memory.Fact{}
	}
	return facts
}
