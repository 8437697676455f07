package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/hrassist-go/internal/chunker"
	"github.com/54b3r/hrassist-go/internal/pipeline"
	"github.com/54b3r/hrassist-go/internal/rag"
	"github.com/54b3r/hrassist-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds a single POST /api/ask or POST /api/chat request.
	// Defaults to 2 minutes.
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// UploadDir receives files posted to /api/ingest. It is emptied before
	// every rebuild. Defaults to a directory under os.TempDir.
	UploadDir string
	// DefaultPolicy is the document ingested when use_default is set.
	DefaultPolicy string
	// PolicyDir is rebuilt into the index on ReingestSchedule.
	PolicyDir string
	// ReingestSchedule is a cron expression for periodic rebuilds from
	// PolicyDir. Empty disables scheduled rebuilds.
	ReingestSchedule string
	// MaxUploadBytes caps the multipart body of /api/ingest. Defaults to 64 MiB.
	MaxUploadBytes int64
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// ragService is the question-answering surface handlers call.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type ragService interface {
	Answer(ctx context.Context, question string, k int) (*rag.Answer, error)
	Ingest(ctx context.Context, paths []string, chunkCfg chunker.Config) (*pipeline.IngestReport, error)
	Status(ctx context.Context) (pipeline.Status, error)
}

// querier is the interface handleChat calls to stream a response.
// *agent.HRAgent satisfies it.
type querier interface {
	// Query streams the agent reply for message to w and returns it in full.
	Query(ctx context.Context, session, message string, w io.Writer) (string, error)
}

// Deps are the collaborators behind the API.
type Deps struct {
	// RAG answers questions and rebuilds the index. Required.
	RAG ragService
	// Agent serves POST /api/chat. When nil the route answers 503.
	Agent querier
	// History stores /api/ask turns and backs GET /api/history. Optional.
	History store.ConversationStore
}

// Server is the HTTP server for the HR assistant API.
type Server struct {
	rag     ragService
	querier querier
	history store.ConversationStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped root handler.
	handler http.Handler
	log     *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// ingestMu is held for the whole of an upload+rebuild so a second upload
	// cannot clear the directory a running rebuild is reading.
	ingestMu sync.Mutex
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	Question string `json:"question"`
	// K overrides the retrieval depth. Zero uses the configured default.
	K         int    `json:"k,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// skippedDocument reports one document that failed to load.
type skippedDocument struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	Documents int               `json:"documents"`
	Chunks    int               `json:"chunks"`
	Sources   []string          `json:"sources"`
	Skipped   []skippedDocument `json:"skipped"`
	// DurationMS is the wall time of the rebuild in milliseconds.
	DurationMS int64 `json:"durationMs"`
}

// historyResponse is the JSON response for GET /api/history?session=.
type historyResponse struct {
	Session  string          `json:"session"`
	Messages []store.Message `json:"messages"`
}

// sessionsResponse is the JSON response for GET /api/history with no session.
type sessionsResponse struct {
	Sessions []store.Session `json:"sessions"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
