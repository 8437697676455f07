package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/hrassist-go/internal/agent"
	"github.com/54b3r/hrassist-go/internal/chunker"
	"github.com/54b3r/hrassist-go/internal/embedder"
	"github.com/54b3r/hrassist-go/internal/hris"
	"github.com/54b3r/hrassist-go/internal/index"
	"github.com/54b3r/hrassist-go/internal/loader"
	"github.com/54b3r/hrassist-go/internal/pipeline"
	"github.com/54b3r/hrassist-go/internal/provider"
	"github.com/54b3r/hrassist-go/internal/rag"
	"github.com/54b3r/hrassist-go/internal/server"
	"github.com/54b3r/hrassist-go/internal/store"
	"github.com/54b3r/hrassist-go/internal/tools"
)

const (
	// historyDisabled is the HRASSIST_HISTORY_DB value that turns history off.
	historyDisabled = "disabled"
	// defaultUploadDir receives documents posted to the ingest endpoint.
	defaultUploadDir = "uploads"
	// defaultPolicyPath is ingested by --default / use_default.
	defaultPolicyPath = "sample_policies/combined_hr_policy.pdf"
)

// app bundles the collaborators shared by ask, ingest, agent and serve.
type app struct {
	log         *slog.Logger
	pipeline    *pipeline.Pipeline
	index       rag.Index
	chatModel   model.ToolCallingChatModel
	providerCfg *provider.Config
	topK        int
}

// Close releases the index.
func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		a.log.Warn("index: close failed", slog.Any("error", err))
	}
}

// newApp builds the provider, embedder, index and pipeline from the
// environment. resetIndex discards the stored index on open, which is
// required after switching embedding models.
func newApp(ctx context.Context, log *slog.Logger, resetIndex bool) (*app, error) {
	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	completer, err := provider.NewCompleter(chatModel)
	if err != nil {
		return nil, err
	}
	log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

	emb, embSettings, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", embSettings.Backend),
		slog.String("model", embSettings.Model),
	)

	idx, err := openIndex(ctx, log, embSettings.Model, resetIndex)
	if err != nil {
		return nil, err
	}

	chunkCfg, err := chunkConfigFromEnv()
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	topK, err := envInt("RETRIEVAL_TOP_K", rag.DefaultTopK)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	batch, err := envInt("EMBED_BATCH_SIZE", pipeline.DefaultEmbedBatchSize)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	maxCtx, err := envInt("MAX_CONTEXT_TOKENS", 0)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	p, err := pipeline.New(ctx, pipeline.Config{
		Loader:           loader.New(loader.WithLogger(log)),
		Embedder:         emb,
		Index:            idx,
		Completer:        completer,
		Chunk:            chunkCfg,
		TopK:             topK,
		EmbedBatchSize:   batch,
		MaxContextTokens: maxCtx,
		Logger:           log,
	})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	return &app{
		log:         log,
		pipeline:    p,
		index:       idx,
		chatModel:   chatModel,
		providerCfg: providerCfg,
		topK:        topK,
	}, nil
}

// openIndex opens the configured index backend, recording model as the
// embedding model when none is configured explicitly.
func openIndex(ctx context.Context, log *slog.Logger, model string, reset bool) (rag.Index, error) {
	cfg, err := index.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.Options.Model == "" {
		cfg.Options.Model = model
	}
	cfg.Options.Reset = reset

	idx, err := index.Open(ctx, cfg, log)
	if err != nil {
		var cfgErr *rag.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Field == "embedding_model" {
			return nil, fmt.Errorf("%w (re-run `hrassist ingest --reset` to rebuild with the new model)", err)
		}
		return nil, fmt.Errorf("failed to open %s index: %w", cfg.Backend, err)
	}
	log.Info("index opened", slog.String("backend", cfg.Backend))
	return idx, nil
}

// openHistory opens the conversation store named by HRASSIST_HISTORY_DB
// (default ~/.hrassist/history.db). It returns nil when history is disabled
// or cannot be opened; history is never fatal.
func openHistory(log *slog.Logger) (*store.SQLiteStore, func()) {
	noop := func() {}
	dbPath := os.Getenv("HRASSIST_HISTORY_DB")
	if dbPath == historyDisabled {
		log.Info("history: disabled via HRASSIST_HISTORY_DB=disabled")
		return nil, noop
	}
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
		dbPath = p
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildAgent wires the HR tools to the pipeline and HRIS client.
func buildAgent(ctx context.Context, a *app, history store.ConversationStore) (*agent.HRAgent, error) {
	employeeID := hris.EmployeeIDFromEnv()
	client := hris.NewFromEnv(a.log)

	maxCtx, err := envInt("MAX_CONTEXT_TOKENS", 0)
	if err != nil {
		return nil, err
	}
	hrAgent, err := agent.New(ctx, &agent.Config{
		ChatModel:        a.chatModel,
		Tools:            tools.All(a.pipeline, client, employeeID, a.topK),
		EmployeeID:       employeeID,
		History:          history,
		MaxContextTokens: maxCtx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise agent: %w", err)
	}
	return hrAgent, nil
}

// buildPingers assembles the readiness probes for serve.
func buildPingers(a *app, history *store.SQLiteStore) []server.Pinger {
	var pingers []server.Pinger
	if p := server.NewLLMPinger(provider.NewHealthCheck(a.providerCfg), string(a.providerCfg.Backend)); p != nil {
		pingers = append(pingers, p)
	}

	switch idx := a.index.(type) {
	case interface{ Client() *qdrant.Client }:
		pingers = append(pingers, server.NewQdrantPinger(idx.Client()))
	case interface{ Ping(context.Context) error }:
		pingers = append(pingers, server.NewContextPinger("index", idx))
	}

	if history != nil {
		pingers = append(pingers, server.NewContextPinger("history", history))
	}
	return pingers
}

// chunkConfigFromEnv reads CHUNK_SIZE and CHUNK_OVERLAP.
func chunkConfigFromEnv() (chunker.Config, error) {
	size, err := envInt("CHUNK_SIZE", chunker.DefaultSize)
	if err != nil {
		return chunker.Config{}, err
	}
	overlap, err := envInt("CHUNK_OVERLAP", chunker.DefaultOverlap)
	if err != nil {
		return chunker.Config{}, err
	}
	cfg := chunker.Config{Size: size, Overlap: overlap}
	return cfg, cfg.Validate()
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt parses the named variable as an integer, returning fallback when
// it is unset.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &rag.ConfigError{Field: key, Reason: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

// envDuration parses the named variable as a Go duration, returning
// fallback when it is unset.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &rag.ConfigError{Field: key, Reason: fmt.Sprintf("not a duration: %q", v)}
	}
	return d, nil
}
