package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/hrassist-go/internal/provider"
)

// LLMPinger probes the chat backend through its token-free health endpoint.
type LLMPinger struct {
	check provider.HealthChecker
	name  string
}

// NewLLMPinger returns nil when check is nil, so backends without a cheap
// probe (ark, gemini) are left out of readiness rather than burning tokens.
func NewLLMPinger(check provider.HealthChecker, name string) Pinger {
	if check == nil {
		return nil
	}
	return &LLMPinger{check: check, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.check.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// ContextPinger adapts any dependency with a Ping(ctx) method, such as the
// SQLite index or the history store.
type ContextPinger struct {
	target interface{ Ping(context.Context) error }
	name   string
}

// NewContextPinger labels target as name in readiness responses.
func NewContextPinger(name string, target interface{ Ping(context.Context) error }) *ContextPinger {
	return &ContextPinger{target: target, name: name}
}

// Name returns the dependency label.
func (p *ContextPinger) Name() string { return p.name }

// Ping delegates to the wrapped dependency.
func (p *ContextPinger) Ping(ctx context.Context) error { return p.target.Ping(ctx) }
