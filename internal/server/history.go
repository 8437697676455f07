package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/54b3r/hrassist-go/internal/logging"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// handleStatus handles GET /api/status: pipeline state and index stats.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.rag.Status(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("status failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.indexEntries.Set(float64(st.Entries))
	writeJSON(w, r, http.StatusOK, st)
}

// handleHistory handles GET /api/history. With ?session= it returns that
// session's latest messages (bounded by ?limit=), otherwise the session list.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "conversation history is disabled")
		return
	}
	log := logging.FromContext(r.Context())
	q := r.URL.Query()

	session := q.Get("session")
	if session == "" {
		sessions, err := s.history.Sessions(r.Context())
		if err != nil {
			log.Error("history: list sessions failed", slog.Any("error", err))
			writeError(w, r, http.StatusInternalServerError, "failed to list sessions")
			return
		}
		writeJSON(w, r, http.StatusOK, sessionsResponse{Sessions: sessions})
		return
	}

	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := s.history.Recent(r.Context(), session, limit)
	if err != nil {
		log.Error("history: load failed", slog.String("session", session), slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, r, http.StatusOK, historyResponse{Session: session, Messages: msgs})
}
