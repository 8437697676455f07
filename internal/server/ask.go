package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/store"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// handleAsk handles POST /api/ask: one grounded answer with its sources.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, http.StatusBadRequest, "question is required")
		return
	}
	if req.K < 0 {
		writeError(w, r, http.StatusBadRequest, "k must not be negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	start := time.Now()
	answer, err := s.rag.Answer(ctx, req.Question, req.K)
	outcome := outcomeFor(err)
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("ask failed", slog.String("outcome", outcome), slog.Any("error", err))
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	log.Info("ask answered",
		slog.Bool("grounded", answer.Grounded),
		slog.Int("sources", len(answer.Sources)),
	)
	s.remember(r.Context(), req.SessionID, req.Question, answer.Text)
	writeJSON(w, r, http.StatusOK, answer)
}

// remember appends a question/answer pair to the history store, if any.
// Failures are logged; the caller already has its answer.
func (s *Server) remember(ctx context.Context, session, question, answer string) {
	if s.history == nil {
		return
	}
	log := logging.FromContext(ctx)
	session = store.SessionOrDefault(session)
	if err := s.history.Append(ctx, session, store.RoleUser, question); err != nil {
		log.Warn("history: failed to persist question", slog.Any("error", err))
		return
	}
	if err := s.history.Append(ctx, session, store.RoleAssistant, answer); err != nil {
		log.Warn("history: failed to persist answer", slog.Any("error", err))
	}
}
