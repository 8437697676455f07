package rag

import (
	"errors"
	"fmt"
)

// LoadError reports a document that could not be loaded. It is non-fatal to
// the batch: the loader keeps going with the remaining documents.
type LoadError struct {
	// Source is the path or name of the document that failed.
	Source string
	// Err is the underlying cause.
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigError reports invalid configuration, rejected before any work starts.
type ConfigError struct {
	// Field names the offending setting (e.g. "chunk_overlap").
	Field string
	// Reason describes why the value is invalid.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DimensionMismatchError is returned when a vector's length disagrees with
// the dimension pinned for the index.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index has %d, got %d", e.Want, e.Got)
}

// EmptyIndexError is returned by Index.Query when no entries are stored.
type EmptyIndexError struct{}

func (e *EmptyIndexError) Error() string { return "index is empty" }

// EmbeddingError wraps a failure of the embedding collaborator.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return "embedding failed: " + e.Err.Error() }

func (e *EmbeddingError) Unwrap() error { return e.Err }

// CompletionError wraps a failure of the completion collaborator.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return "completion failed: " + e.Err.Error() }

func (e *CompletionError) Unwrap() error { return e.Err }

// RetrievalError is surfaced to callers when query-time retrieval fails.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval failed: " + e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError is surfaced to callers when answer generation fails.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// IsEmptyIndex reports whether err is, or wraps, an *EmptyIndexError.
func IsEmptyIndex(err error) bool {
	var target *EmptyIndexError
	return errors.As(err, &target)
}
