// Package embedder provides implementations of rag.Embedder. OpenAI, Azure
// OpenAI and Ollama are reached over their REST APIs; Gemini goes through the
// google.golang.org/genai SDK.
package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/hrassist-go/internal/rag"
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendGemini = "gemini"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultProvider matches the chat provider default.
	defaultProvider = BackendOpenAI
)

// Settings is the resolved embedding configuration. The index records Model
// so that vectors from different models are never mixed.
type Settings struct {
	// Backend is one of ollama, openai, azure, gemini.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Dimensions requests a specific output length where the API supports it
	// (0 = model default).
	Dimensions int
	// APIKey authenticates against hosted backends.
	APIKey string
	// Endpoint is the API base URL (Ollama host, OpenAI base, Azure resource).
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// SettingsFromEnv resolves Settings with cascading defaults that inherit from
// the chat provider configuration when embedding-specific overrides are unset.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else openai
//  2. Per-backend credentials inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the backend default model
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS requests a specific vector length
func SettingsFromEnv() (Settings, error) {
	s := Settings{
		Backend:    os.Getenv("EMBEDDING_PROVIDER"),
		Model:      os.Getenv("EMBEDDING_MODEL"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-10-21"),
	}
	if s.Backend == "" {
		s.Backend = getEnvOrDefault("MODEL_PROVIDER", defaultProvider)
	}
	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 0 {
			return Settings{}, &rag.ConfigError{Field: "embedding_dimensions", Reason: fmt.Sprintf("not a non-negative integer: %q", v)}
		}
		s.Dimensions = d
	}

	switch s.Backend {
	case BackendOllama:
		s.Endpoint = firstNonEmpty(s.Endpoint, os.Getenv("OLLAMA_HOST"), "http://localhost:11434")
		s.Model = firstNonEmpty(s.Model, defaultOllamaModel)

	case BackendOpenAI:
		s.APIKey = firstNonEmpty(s.APIKey, os.Getenv("OPENAI_API_KEY"))
		s.Endpoint = firstNonEmpty(s.Endpoint, os.Getenv("OPENAI_BASE_URL"), "https://api.openai.com/v1")
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)

	case BackendAzure:
		s.APIKey = firstNonEmpty(s.APIKey, os.Getenv("AZURE_OPENAI_API_KEY"))
		s.Endpoint = firstNonEmpty(s.Endpoint, os.Getenv("AZURE_OPENAI_ENDPOINT"))
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)

	case BackendGemini:
		s.APIKey = firstNonEmpty(s.APIKey, os.Getenv("GOOGLE_API_KEY"))
		s.Model = firstNonEmpty(s.Model, defaultGeminiModel)

	default:
		return Settings{}, &rag.ConfigError{
			Field:  "embedding_provider",
			Reason: fmt.Sprintf("unknown backend %q (valid: ollama, openai, azure, gemini)", s.Backend),
		}
	}
	return s, s.Validate()
}

// Validate reports missing credentials for the selected backend.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendOpenAI:
		if s.APIKey == "" {
			return &rag.ConfigError{Field: "embedding_api_key", Reason: "openai requires OPENAI_API_KEY or EMBEDDING_API_KEY"}
		}
	case BackendAzure:
		if s.APIKey == "" {
			return &rag.ConfigError{Field: "embedding_api_key", Reason: "azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY"}
		}
		if s.Endpoint == "" {
			return &rag.ConfigError{Field: "embedding_endpoint", Reason: "azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT"}
		}
	case BackendGemini:
		if s.APIKey == "" {
			return &rag.ConfigError{Field: "embedding_api_key", Reason: "gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY"}
		}
	}
	return nil
}

// New constructs the embedder described by s.
func New(ctx context.Context, s Settings) (rag.Embedder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Backend {
	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model}), nil
	case BackendOpenAI:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		}), nil
	case BackendAzure:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint + "/openai",
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Azure:      true,
			APIVersion: s.APIVersion,
		}), nil
	case BackendGemini:
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	default:
		return nil, &rag.ConfigError{Field: "embedding_provider", Reason: fmt.Sprintf("unknown backend %q", s.Backend)}
	}
}

// NewFromEnv resolves settings from the environment and constructs the
// embedder. The settings are returned so callers can record the model.
func NewFromEnv(ctx context.Context) (rag.Embedder, Settings, error) {
	s, err := SettingsFromEnv()
	if err != nil {
		return nil, Settings{}, err
	}
	e, err := New(ctx, s)
	if err != nil {
		return nil, Settings{}, err
	}
	return e, s, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
