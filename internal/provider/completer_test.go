package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// stubChatModel returns a fixed reply and records the last input.
type stubChatModel struct {
	reply *schema.Message
	err   error
	input []*schema.Message
}

func (s *stubChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.input = input
	return s.reply, s.err
}

func (s *stubChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestCompleter_Complete(t *testing.T) {
	t.Parallel()
	stub := &stubChatModel{reply: schema.AssistantMessage("15 days [1]", nil)}
	c, err := NewCompleter(stub)
	if err != nil {
		t.Fatalf("NewCompleter: %v", err)
	}

	got, err := c.Complete(context.Background(), "grounded prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "15 days [1]" {
		t.Errorf("Complete = %q", got)
	}
	if len(stub.input) != 1 || stub.input[0].Role != schema.User || stub.input[0].Content != "grounded prompt" {
		t.Errorf("unexpected model input: %+v", stub.input)
	}
}

func TestCompleter_Errors(t *testing.T) {
	t.Parallel()
	cause := errors.New("upstream 500")
	c, _ := NewCompleter(&stubChatModel{err: cause})
	if _, err := c.Complete(context.Background(), "p"); !errors.Is(err, cause) {
		t.Errorf("want wrapped cause, got %v", err)
	}

	c, _ = NewCompleter(&stubChatModel{})
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Error("want error for nil message")
	}

	if _, err := NewCompleter(nil); err == nil {
		t.Error("want error for nil model")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer healthy.Close()

	hc := NewHealthCheck(&Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: healthy.URL}})
	if err := hc.HealthCheck(context.Background()); err != nil {
		t.Errorf("healthy ollama: %v", err)
	}

	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer unauthorized.Close()

	hc = NewHealthCheck(&Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "bad", BaseURL: unauthorized.URL}})
	if err := hc.HealthCheck(context.Background()); err == nil {
		t.Error("want error for 401")
	}

	if NewHealthCheck(&Config{Backend: BackendGemini}) != nil {
		t.Error("gemini has no token-free probe")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"MODEL_PROVIDER", "OPENAI_MODEL", "MODEL_TEMPERATURE", "MODEL_MAX_TOKENS"} {
		t.Setenv(k, "")
	}
	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOpenAI {
		t.Errorf("Backend = %q, want openai", cfg.Backend)
	}
	if cfg.OpenAI.Model != "gpt-4-turbo-2024-04-09" {
		t.Errorf("OpenAI.Model = %q", cfg.OpenAI.Model)
	}
	if cfg.Tuning.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", cfg.Tuning.Temperature)
	}
	if cfg.ModelName() != cfg.OpenAI.Model {
		t.Errorf("ModelName = %q", cfg.ModelName())
	}
}
