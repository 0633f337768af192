package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/trivia"
)

// Handler serves WebSocket upgrade requests for session spectators.
type Handler struct {
	manager *Manager
	store   store.Store
}

// NewHandler creates a handler backed by the manager.
func NewHandler(m *Manager, st store.Store) *Handler {
	return &Handler{manager: m, store: st}
}

// HandleSessionConnection attaches a WebSocket to the session named by the
// code query parameter. The session must exist.
func (h *Handler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if err := trivia.ValidateCode(code); err != nil {
		http.Error(w, "invalid session code", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	_, ok, err := h.store.Read(ctx, trivia.SessionPath(code))
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if err := h.manager.Upgrade(w, r, code); err != nil {
		log.Error().
			Err(err).
			Str("session", code).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleStats reports active pools and sockets.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	sessions, connections := h.manager.Stats()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"active_sessions":%d,"total_connections":%d}`, sessions, connections)
}

// RegisterRoutes wires the gateway endpoints onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
