// Package chunker splits document text into overlapping fixed-size windows.
// Sizes and offsets are measured in runes so multi-byte characters are never
// cut in half.
package chunker

import (
	"fmt"

	"github.com/54b3r/hrassist-go/internal/loader"
	"github.com/54b3r/hrassist-go/internal/rag"
)

const (
	// DefaultSize is the default window length in characters.
	DefaultSize = 500
	// DefaultOverlap is the default number of characters shared by
	// consecutive windows.
	DefaultOverlap = 100
)

// Config controls window size and overlap.
type Config struct {
	// Size is the maximum chunk length in characters. Must be > 0.
	Size int `json:"size"`
	// Overlap is the number of characters each chunk repeats from the end of
	// its predecessor. Must satisfy 0 <= Overlap < Size.
	Overlap int `json:"overlap"`
}

// DefaultConfig returns the 500/100 configuration.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate reports a *rag.ConfigError for an unusable configuration.
func (c Config) Validate() error {
	switch {
	case c.Size <= 0:
		return &rag.ConfigError{Field: "chunk_size", Reason: fmt.Sprintf("must be > 0, got %d", c.Size)}
	case c.Overlap < 0:
		return &rag.ConfigError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be >= 0, got %d", c.Overlap)}
	case c.Overlap >= c.Size:
		return &rag.ConfigError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be < chunk_size (%d), got %d", c.Size, c.Overlap)}
	}
	return nil
}

// Split cuts text into windows of cfg.Size runes advancing by
// cfg.Size-cfg.Overlap. The last window may be shorter but is never empty.
// Empty text yields no chunks. The returned chunks carry offsets and text
// only; SplitDocument fills in provenance.
func Split(text string, cfg Config) ([]rag.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	step := cfg.Size - cfg.Overlap
	chunks := make([]rag.Chunk, 0, n/step+1)
	for start := 0; ; start += step {
		end := min(start+cfg.Size, n)
		chunks = append(chunks, rag.Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// SplitDocument splits doc.Text and stamps every chunk with the document
// source and the page containing its first character.
func SplitDocument(doc loader.Document, cfg Config) ([]rag.Chunk, error) {
	chunks, err := Split(doc.Text, cfg)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Source = doc.Source
		chunks[i].Page = doc.PageAt(chunks[i].Start)
	}
	return chunks, nil
}

// Reconstruct joins chunks produced by Split back into the original text by
// dropping the prefix each chunk shares with its predecessor.
func Reconstruct(chunks []rag.Chunk) string {
	var out []rune
	prevEnd := 0
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			shared := prevEnd - c.Start
			if shared > len(r) {
				shared = len(r)
			}
			if shared > 0 {
				r = r[shared:]
			}
		}
		out = append(out, r...)
		prevEnd = c.End
	}
	return string(out)
}
