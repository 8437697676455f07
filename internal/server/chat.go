package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/hrassist-go/internal/logging"
)

// handleChat handles POST /api/chat. The agent's reply is streamed as
// Server-Sent Events: data frames while tokens arrive, then a single
// "done" or "error" event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.querier == nil {
		s.metrics.chatRequestsTotal.WithLabelValues("rejected").Inc()
		writeError(w, r, http.StatusServiceUnavailable, "agent chat is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	sw := &sseWriter{w: w, flusher: flusher}
	_, err := s.querier.Query(ctx, req.SessionID, req.Message, sw)
	outcome := outcomeFor(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome = "timeout"
	}
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		log.Error("chat failed", slog.String("outcome", outcome), slog.Any("error", err))
		sw.event("error", err.Error())
		return
	}
	sw.event("done", "[DONE]")
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event frames.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// Write emits p as one data frame and flushes it. Every line of p gets its
// own "data: " prefix so multi-line chunks never break the frame boundary.
func (s *sseWriter) Write(p []byte) (int, error) {
	if err := s.frame("", string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// event emits a named event. Write errors are ignored; the client is gone.
func (s *sseWriter) event(name, data string) {
	_ = s.frame(name, data)
}

func (s *sseWriter) frame(event, data string) error {
	var buf strings.Builder
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	for line := range strings.SplitSeq(strings.TrimRight(data, "\n"), "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	if _, err := fmt.Fprint(s.w, buf.String()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
