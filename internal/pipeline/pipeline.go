// Package pipeline composes the HR assistant stages into the two operations
// callers use: Ingest (load → chunk → embed → index) and Answer (retrieve →
// compose). It owns the lifecycle state of the index and serialises
// ingestion runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/54b3r/hrassist-go/internal/chunker"
	"github.com/54b3r/hrassist-go/internal/loader"
	"github.com/54b3r/hrassist-go/internal/rag"
)

// DefaultEmbedBatchSize is the number of chunks sent per Embed call.
const DefaultEmbedBatchSize = 64

var (
	// ErrIngestInProgress is returned when Ingest is called while another
	// ingestion is running.
	ErrIngestInProgress = errors.New("pipeline: an ingestion is already in progress")

	// ErrEmptyQuestion is returned by Answer for a blank question.
	ErrEmptyQuestion = errors.New("pipeline: question must not be empty")
)

// DocumentLoader reads source documents. *loader.Loader satisfies it.
type DocumentLoader interface {
	Load(ctx context.Context, paths []string) ([]loader.Document, []*rag.LoadError)
}

// Config wires the pipeline's collaborators.
type Config struct {
	// Loader reads documents during ingestion.
	Loader DocumentLoader
	// Embedder vectorises chunks and questions.
	Embedder rag.Embedder
	// Index stores and searches entries. The pipeline does not close it.
	Index rag.Index
	// Completer generates grounded answers.
	Completer rag.Completer
	// Chunk is the default chunking configuration for Ingest.
	Chunk chunker.Config
	// TopK is the default number of chunks retrieved per question.
	TopK int
	// EmbedBatchSize bounds the texts per Embed call.
	EmbedBatchSize int
	// MaxContextTokens caps the estimated prompt size.
	MaxContextTokens int
	// Logger receives stage progress. Defaults to slog.Default.
	Logger *slog.Logger
}

// IngestReport summarises a successful ingestion.
type IngestReport struct {
	// Documents is the number of documents loaded.
	Documents int `json:"documents"`
	// Chunks is the number of entries written to the index.
	Chunks int `json:"chunks"`
	// Sources lists the loaded document identifiers in order.
	Sources []string `json:"sources"`
	// Skipped lists documents that failed to load.
	Skipped []*rag.LoadError `json:"-"`
	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration"`
}

// Status is a snapshot of the pipeline and its index.
type Status struct {
	State      State     `json:"state"`
	Entries    int       `json:"entries"`
	Dimension  int       `json:"dimension"`
	Metric     string    `json:"metric"`
	Model      string    `json:"model,omitempty"`
	LastIngest time.Time `json:"lastIngest,omitzero"`
}

// Pipeline is safe for concurrent use. Questions may be answered while an
// ingestion runs; they see the index as it was before the rebuild until the
// rebuild commits.
type Pipeline struct {
	cfg       Config
	retriever *rag.Retriever
	composer  *rag.Composer
	log       *slog.Logger

	// mu guards the fields below.
	mu         sync.Mutex
	state      State
	prevState  State
	lastIngest time.Time
}

// New validates cfg and derives the initial state from the index contents.
func New(ctx context.Context, cfg Config) (*Pipeline, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("pipeline: loader must not be nil")
	}
	if cfg.Chunk == (chunker.Config{}) {
		cfg.Chunk = chunker.DefaultConfig()
	}
	if err := cfg.Chunk.Validate(); err != nil {
		return nil, err
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	retriever, err := rag.NewRetriever(cfg.Embedder, cfg.Index, cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	composer, err := rag.NewComposer(cfg.Completer, rag.WithMaxContextTokens(cfg.MaxContextTokens))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	stats, err := cfg.Index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read index stats: %w", err)
	}
	state := StateEmpty
	if stats.Entries > 0 {
		state = StateReady
	}

	return &Pipeline{
		cfg:       cfg,
		retriever: retriever,
		composer:  composer,
		log:       cfg.Logger,
		state:     state,
		prevState: state,
	}, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Ingest rebuilds the index from paths. A zero chunk config selects the
// pipeline default. On failure the index and state are left as they were and
// the error is a *StageError naming the failing stage; an invalid chunk
// config is rejected as *rag.ConfigError before any work starts.
func (p *Pipeline) Ingest(ctx context.Context, paths []string, chunkCfg chunker.Config) (*IngestReport, error) {
	if chunkCfg == (chunker.Config{}) {
		chunkCfg = p.cfg.Chunk
	}
	if err := chunkCfg.Validate(); err != nil {
		return nil, err
	}

	if err := p.beginIngest(); err != nil {
		return nil, err
	}
	started := time.Now()
	report, err := p.ingest(ctx, paths, chunkCfg)
	p.endIngest(err == nil)
	if err != nil {
		p.log.Warn("pipeline: ingestion failed", "error", err)
		return nil, err
	}

	report.Duration = time.Since(started)
	p.log.Info("pipeline: ingestion complete",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"skipped", len(report.Skipped),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (p *Pipeline) beginIngest() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRebuilding {
		return ErrIngestInProgress
	}
	p.prevState = p.state
	p.state = StateRebuilding
	return nil
}

func (p *Pipeline) endIngest(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.state = StateReady
		p.lastIngest = time.Now()
	} else {
		p.state = p.prevState
	}
	p.prevState = p.state
}

func (p *Pipeline) ingest(ctx context.Context, paths []string, chunkCfg chunker.Config) (*IngestReport, error) {
	docs, skipped := p.cfg.Loader.Load(ctx, paths)
	for _, le := range skipped {
		p.log.Warn("pipeline: document skipped", "source", le.Source, "error", le.Err)
	}
	if len(docs) == 0 {
		cause := errors.New("no documents could be loaded")
		if len(skipped) > 0 {
			errs := make([]error, len(skipped))
			for i, le := range skipped {
				errs[i] = le
			}
			cause = fmt.Errorf("%w: %w", cause, errors.Join(errs...))
		}
		return nil, &StageError{Stage: StageLoad, Err: cause}
	}

	report := &IngestReport{Documents: len(docs), Skipped: skipped}
	var chunks []rag.Chunk
	for _, doc := range docs {
		cs, err := chunker.SplitDocument(doc, chunkCfg)
		if err != nil {
			return nil, &StageError{Stage: StageChunk, Err: fmt.Errorf("%s: %w", doc.Source, err)}
		}
		chunks = append(chunks, cs...)
		report.Sources = append(report.Sources, doc.Source)
	}
	if len(chunks) == 0 {
		return nil, &StageError{Stage: StageChunk, Err: errors.New("documents produced no chunks")}
	}
	p.log.Info("pipeline: chunked documents", "documents", len(docs), "chunks", len(chunks))

	entries, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, &StageError{Stage: StageEmbed, Err: err}
	}

	if err := p.cfg.Index.Rebuild(ctx, entries); err != nil {
		return nil, &StageError{Stage: StageIndex, Err: err}
	}
	report.Chunks = len(entries)
	return report, nil
}

// embed vectorises chunks in batches of EmbedBatchSize.
func (p *Pipeline) embed(ctx context.Context, chunks []rag.Chunk) ([]rag.IndexEntry, error) {
	entries := make([]rag.IndexEntry, 0, len(chunks))
	batch := p.cfg.EmbedBatchSize
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		vectors, err := p.cfg.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, &rag.EmbeddingError{Err: err}
		}
		if len(vectors) != len(texts) {
			return nil, &rag.EmbeddingError{Err: fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors))}
		}
		for i, v := range vectors {
			entries = append(entries, rag.IndexEntry{Chunk: chunks[start+i], Vector: v})
		}
		p.log.Debug("pipeline: embedded batch", "from", start, "to", end, "total", len(chunks))
	}
	return entries, nil
}

// Answer retrieves up to k chunks for question (k <= 0 selects the default)
// and composes a grounded answer. When nothing has been ingested yet the
// fixed no-policy answer is returned without calling any collaborator.
func (p *Pipeline) Answer(ctx context.Context, question string, k int) (*rag.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if !p.queryable() {
		return rag.NoPolicy(), nil
	}

	result, err := p.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	return p.composer.Compose(ctx, question, result)
}

// Retrieve runs only the retrieval stage. It is used by the agent's policy
// search tool, which formats chunks itself.
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int) (rag.RetrievalResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if !p.queryable() {
		return rag.RetrievalResult{}, nil
	}
	return p.retriever.Retrieve(ctx, question, k)
}

// queryable reports whether the index can contain entries: Ready, or a
// rebuild in progress over a previously Ready index.
func (p *Pipeline) queryable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateReady:
		return true
	case StateRebuilding:
		return p.prevState == StateReady
	}
	return false
}

// Status reports state and index statistics.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	stats, err := p.cfg.Index.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("pipeline: read index stats: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		State:      p.state,
		Entries:    stats.Entries,
		Dimension:  stats.Dimension,
		Metric:     string(stats.Metric),
		Model:      stats.Model,
		LastIngest: p.lastIngest,
	}, nil
}
