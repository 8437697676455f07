// Package server implements the HTTP API of the HR assistant: grounded
// policy answers, index rebuilds from uploaded documents, the streaming
// agent chat, and the operational endpoints (health, readiness, metrics).
// The server is started by the `hrassist serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/pipeline"
	"github.com/54b3r/hrassist-go/internal/rag"
)

const (
	defaultAskTimeout     = 2 * time.Minute
	defaultMaxUploadBytes = 64 << 20
)

// New constructs a Server from deps and cfg.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.RAG == nil {
		return nil, fmt.Errorf("server: RAG service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast a rebuild and a streamed chat turn.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = defaultAskTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "hrassist-uploads")
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if err := validateSchedule(cfg); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		rag:     deps.RAG,
		querier: deps.Agent,
		history: deps.History,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	if cfg.APIKey == "" {
		log.Warn("server: API key not set, authentication disabled")
	}
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	s.route(mux, "POST /api/ask", "ask", protect(s.handleAsk))
	s.route(mux, "POST /api/ingest", "ingest", protect(s.handleIngest))
	s.route(mux, "POST /api/chat", "chat", protect(s.handleChat))
	s.route(mux, "GET /api/status", "status", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleStatus)))
	s.route(mux, "GET /api/history", "history", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleHistory)))
	s.route(mux, "GET /api/health", "health", http.HandlerFunc(s.handleHealth))
	s.route(mux, "GET /api/ready", "ready", http.HandlerFunc(s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.handler = requestLogger(log, mux)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// route registers h under pattern, instrumented under the handler label name.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, s.metrics.instrument(name, h))
}

// Handler returns the root handler, including logging and metrics middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	if s.cfg.ReingestSchedule != "" {
		c, err := s.newReingestCron(ctx)
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		s.log.Info("scheduled reingest enabled",
			slog.String("schedule", s.cfg.ReingestSchedule),
			slog.String("dir", s.cfg.PolicyDir),
		)
	}

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps a pipeline or agent error to the HTTP status returned to
// the client.
func statusFor(err error) int {
	var (
		cfgErr   *rag.ConfigError
		retErr   *rag.RetrievalError
		genErr   *rag.GenerationError
		stageErr *pipeline.StageError
	)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion), errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrIngestInProgress):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &stageErr):
		switch stageErr.Stage {
		case pipeline.StageLoad, pipeline.StageChunk:
			return http.StatusUnprocessableEntity
		case pipeline.StageEmbed:
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case errors.As(err, &retErr), errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// outcomeFor labels err for the outcome metric dimension.
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case statusFor(err) < http.StatusInternalServerError:
		return "rejected"
	default:
		return "error"
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes msg as a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}
