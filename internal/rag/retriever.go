package rag

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of chunks retrieved per question when the caller
// does not ask for a specific count.
const DefaultTopK = 3

// Retriever embeds a question and fetches the most similar stored chunks.
// It is safe for concurrent use.
type Retriever struct {
	// embedder converts the question text to a dense vector.
	embedder Embedder

	// index performs the similarity search.
	index Index

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever from the given Embedder and Index.
// defaultTopK sets the fallback result count when Retrieve is called with k<=0.
func NewRetriever(embedder Embedder, index Index, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the question and returns up to k most similar chunks.
// An empty index yields an empty result and a nil error: nothing has been
// ingested yet, which callers treat as "no relevant policy".
// Embedding failures are returned as *RetrievalError without querying the index.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) (RetrievalResult, error) {
	if k <= 0 {
		k = r.defaultTopK
	}

	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, &RetrievalError{Err: &EmbeddingError{Err: err}}
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, &RetrievalError{Err: &EmbeddingError{Err: fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))}}
	}

	result, err := r.index.Query(ctx, vectors[0], k)
	if err != nil {
		if IsEmptyIndex(err) {
			return RetrievalResult{}, nil
		}
		return nil, &RetrievalError{Err: fmt.Errorf("vector search: %w", err)}
	}

	return result, nil
}
