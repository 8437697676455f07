package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/hrassist-go/internal/rag"
)

// Completer adapts an eino chat model to rag.Completer. Each prompt is sent
// as a single user message; no conversation state is kept.
type Completer struct {
	// model generates the completion.
	model model.BaseChatModel
}

var _ rag.Completer = (*Completer)(nil)

// NewCompleter wraps m.
func NewCompleter(m model.BaseChatModel) (*Completer, error) {
	if m == nil {
		return nil, fmt.Errorf("provider: chat model must not be nil")
	}
	return &Completer{model: m}, nil
}

// Complete sends prompt to the model and returns the generated text.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("provider: generate returned nil message")
	}
	return resp.Content, nil
}
