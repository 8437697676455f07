package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/hrassist-go/internal/budget"
)

// NoPolicyAnswer is returned verbatim when retrieval found nothing to ground
// an answer on. The completion service is not contacted in that case.
const NoPolicyAnswer = "No relevant policy was found in the indexed HR documents."

// groundingInstruction opens every prompt. It restricts the model to the
// supplied excerpts and requires an explicit statement when they fall short.
const groundingInstruction = `You are the HR Assistant. Answer the employee's question using ONLY the
policy excerpts provided below.

Rules:
- Do not use outside knowledge or assumptions about typical HR policies.
- If the excerpts do not contain enough information to answer, say explicitly
  that the provided policy documents do not cover the question. Do not guess.
- Cite every excerpt you rely on by its bracketed number, e.g. [1] or [2][3].
- Answer concisely and clearly.`

// Composer builds grounded prompts from retrieved chunks and forwards them to
// a Completer. It is safe for concurrent use.
type Composer struct {
	// completer is the hosted model the prompt is sent to.
	completer Completer

	// maxContextTokens caps the estimated size of the prompt. Excerpts are
	// dropped lowest-ranked first to fit; the top excerpt is always kept.
	maxContextTokens int
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithMaxContextTokens overrides the estimated prompt budget.
// Values <= 0 are ignored.
func WithMaxContextTokens(n int) ComposerOption {
	return func(c *Composer) {
		if n > 0 {
			c.maxContextTokens = n
		}
	}
}

// NewComposer constructs a Composer that sends prompts to completer.
func NewComposer(completer Completer, opts ...ComposerOption) (*Composer, error) {
	if completer == nil {
		return nil, fmt.Errorf("rag: completer must not be nil")
	}
	c := &Composer{
		completer:        completer,
		maxContextTokens: budget.DefaultMaxContextTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compose answers question from the retrieved chunks. An empty result yields
// the fixed NoPolicyAnswer without calling the completion service. A failing
// completion is returned as *GenerationError; no partial Answer is returned
// and no retry is attempted.
func (c *Composer) Compose(ctx context.Context, question string, result RetrievalResult) (*Answer, error) {
	if len(result) == 0 {
		return NoPolicy(), nil
	}

	prompt, included := c.BuildPrompt(question, result)

	text, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, &GenerationError{Err: &CompletionError{Err: err}}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &GenerationError{Err: &CompletionError{Err: fmt.Errorf("model returned an empty completion")}}
	}

	return &Answer{
		Text:     text,
		Sources:  included,
		Grounded: true,
	}, nil
}

// BuildPrompt renders the grounded prompt and returns it together with the
// chunks that fit the context budget, in the order they were labelled.
func (c *Composer) BuildPrompt(question string, result RetrievalResult) (string, []ScoredChunk) {
	questionBlock := "## Question\n\n" + question + "\n"

	blocks := make([]string, len(result))
	for i, sc := range result {
		blocks[i] = fmt.Sprintf("[%d] %s\n%s\n\n", i+1, provenance(sc.Chunk), sc.Text)
	}
	fixed := budget.Estimate(groundingInstruction) + budget.Estimate(questionBlock)
	n := budget.Fit(fixed, blocks, c.maxContextTokens)

	var sb strings.Builder
	sb.WriteString(groundingInstruction)
	sb.WriteString("\n\n## Policy excerpts\n\n")
	for _, b := range blocks[:n] {
		sb.WriteString(b)
	}
	sb.WriteString(questionBlock)

	included := make([]ScoredChunk, n)
	copy(included, result[:n])
	return sb.String(), included
}

// NoPolicy returns a fresh copy of the fixed fallback Answer.
func NoPolicy() *Answer {
	return &Answer{Text: NoPolicyAnswer, Sources: []ScoredChunk{}, Grounded: false}
}

// provenance renders the citation label for a chunk ("handbook.pdf, page 3").
func provenance(c Chunk) string {
	if c.Page > 0 {
		return fmt.Sprintf("%s, page %d", c.Source, c.Page)
	}
	return c.Source
}
