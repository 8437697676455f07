// Package rag defines the contracts and stages of the retrieval-augmented
// answering pipeline: chunk and index entry types, the collaborator
// interfaces (embedding, completion, vector index), the Retriever, and the
// grounded Answer Composer.
// Concrete backends (SQLite, Qdrant, OpenAI, Ollama, eino chat models) live in
// their own packages and satisfy these interfaces, so the pipeline never
// depends on a specific vendor.
package rag

import (
	"context"
)

// Chunk is a bounded text segment cut from a source document. It is the unit
// of embedding and retrieval.
type Chunk struct {
	// Source identifies the document the chunk was cut from (file base name).
	Source string `json:"source"`

	// Page is the 1-based page containing the first character of the chunk.
	// Zero means the source is not paginated.
	Page int `json:"page,omitempty"`

	// Index is the sequence number of the chunk within its document.
	Index int `json:"index"`

	// Start and End are the half-open rune offsets of the chunk within the
	// document text, including the overlap shared with the previous chunk.
	Start int `json:"start"`
	End   int `json:"end"`

	// Text is the chunk content.
	Text string `json:"text"`
}

// IndexEntry pairs a chunk with its embedding. Entries are owned by the
// Index they were written to.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
}

// ScoredChunk is a chunk returned from a similarity query together with its
// similarity score. Higher scores mean more similar.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// RetrievalResult is the ordered outcome of a query, most similar first.
type RetrievalResult []ScoredChunk

// Answer is the final response returned to the caller.
type Answer struct {
	// Text is the generated (or fixed fallback) answer text.
	Text string `json:"answer"`

	// Sources are the chunks that were included in the prompt, in the order
	// they were labelled there.
	Sources []ScoredChunk `json:"sources"`

	// Grounded is false when the fixed no-policy answer was returned without
	// contacting the completion service.
	Grounded bool `json:"grounded"`
}

// Metric selects the similarity function an Index ranks by.
type Metric string

const (
	// MetricCosine ranks by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricL2 ranks by Euclidean distance, reported as 1/(1+distance).
	MetricL2 Metric = "l2"
)

// IndexStats summarises the state of an Index.
type IndexStats struct {
	// Entries is the number of stored entries.
	Entries int `json:"entries"`
	// Dimension is the embedding length pinned for this index (0 = not yet pinned).
	Dimension int `json:"dimension"`
	// Metric is the similarity metric fixed at creation.
	Metric Metric `json:"metric"`
	// Model is the embedding model the stored vectors were produced with.
	Model string `json:"model,omitempty"`
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer forwards a prompt to a hosted language model and returns the
// generated text. Implementations must be safe to call from multiple goroutines.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Index persists IndexEntries and answers nearest-neighbour queries.
// Writers (Rebuild, Add) are mutually exclusive with each other; queries may
// run concurrently and always observe a complete entry set.
type Index interface {
	// Rebuild atomically replaces every stored entry with entries. On error the
	// previous entries remain queryable.
	Rebuild(ctx context.Context, entries []IndexEntry) error

	// Add appends entries without removing existing ones.
	Add(ctx context.Context, entries []IndexEntry) error

	// Query returns up to k entries most similar to vector, most similar
	// first, ties broken by insertion order. It returns *EmptyIndexError when
	// the index holds no entries.
	Query(ctx context.Context, vector []float32, k int) (RetrievalResult, error)

	// Stats reports entry count, dimension, metric and embedding model.
	Stats(ctx context.Context) (IndexStats, error)

	// Close releases any resources held by the index.
	Close() error
}
