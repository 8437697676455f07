// Package index provides the persisted vector index behind rag.Index. Two
// backends are available: a local SQLite file (the default) and a remote
// Qdrant alias. Both rank with the metric fixed at creation, break score
// ties by insertion order, and replace their contents atomically on Rebuild.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/hrassist-go/internal/rag"
)

// Backend names accepted by INDEX_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Config selects and configures an index backend.
type Config struct {
	// Backend is "sqlite" or "qdrant".
	Backend string

	// Path is the SQLite file. Defaults to ~/.hrassist/index.db.
	Path string

	// Qdrant holds connection settings for the qdrant backend.
	Qdrant QdrantConfig

	// Options are the creation-time properties shared by both backends.
	Options Options
}

// ConfigFromEnv builds a Config from INDEX_*, QDRANT_* and EMBEDDING_*
// environment variables.
//
//	INDEX_BACKEND        = sqlite | qdrant (default sqlite)
//	INDEX_PATH           = SQLite file path
//	INDEX_METRIC         = cosine | l2
//	QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION, QDRANT_API_KEY, QDRANT_TLS
//	EMBEDDING_MODEL, EMBEDDING_DIMENSIONS recorded with the index
func ConfigFromEnv() (Config, error) {
	metric, err := ParseMetric(strings.ToLower(os.Getenv("INDEX_METRIC")))
	if err != nil {
		return Config{}, err
	}
	// Only pin the metric when explicitly configured; an existing index keeps
	// whatever it was created with.
	if os.Getenv("INDEX_METRIC") == "" {
		metric = ""
	}

	cfg := Config{
		Backend: strings.ToLower(os.Getenv("INDEX_BACKEND")),
		Path:    os.Getenv("INDEX_PATH"),
		Qdrant: QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Collection: os.Getenv("QDRANT_COLLECTION"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
		Options: Options{
			Metric: metric,
			Model:  os.Getenv("EMBEDDING_MODEL"),
		},
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, &rag.ConfigError{Field: "qdrant_port", Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		cfg.Qdrant.Port = port
	}
	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil || dim < 0 {
			return Config{}, &rag.ConfigError{Field: "embedding_dimensions", Reason: fmt.Sprintf("not a non-negative integer: %q", v)}
		}
		cfg.Options.Dimension = dim
	}
	return cfg, nil
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (rag.Index, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			p, err := DefaultPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(path, cfg.Options)
	case BackendQdrant:
		return OpenQdrant(ctx, cfg.Qdrant, cfg.Options, log)
	default:
		return nil, &rag.ConfigError{Field: "index_backend", Reason: fmt.Sprintf("unsupported backend %q (want sqlite or qdrant)", cfg.Backend)}
	}
}
