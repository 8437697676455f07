// Package config provides layered configuration for hrassist.
// Precedence is defaults → config file → .env → environment. Environment
// variables always win, and components read their typed settings from the
// environment through small FromEnv constructors.
//
// Config files are YAML, or TOML when the name ends in .toml. Search order:
//  1. --config CLI flag (explicit path)
//  2. HRASSIST_CONFIG environment variable
//  3. ~/.hrassist/config.yaml, then ~/.hrassist/config.toml
//  4. ./hrassist.yaml, then ./hrassist.toml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file structure. Keys mirror the env
// var naming (lowercase, underscored) in both YAML and TOML.
type Config struct {
	Model     ModelConfig     `yaml:"model" toml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Index     IndexConfig     `yaml:"index" toml:"index"`
	RAG       RAGConfig       `yaml:"rag" toml:"rag"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	HRIS      HRISConfig      `yaml:"hris" toml:"hris"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	History   HistoryConfig   `yaml:"history" toml:"history"`
	Tracing   TracingConfig   `yaml:"tracing" toml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: openai, azure, ollama, ark, gemini.
	Provider string `yaml:"provider" toml:"provider"`
	// MaxTokens caps the response length.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
	// Temperature controls response randomness. Zero (the default) keeps
	// answers deterministic.
	Temperature float32 `yaml:"temperature" toml:"temperature"`

	Ollama OllamaConfig `yaml:"ollama" toml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai" toml:"openai"`
	Azure  AzureConfig  `yaml:"azure" toml:"azure"`
	Ark    ArkConfig    `yaml:"ark" toml:"ark"`
	Gemini GeminiConfig `yaml:"gemini" toml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host" toml:"host"`
	Model string `yaml:"model" toml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	Deployment string `yaml:"deployment" toml:"deployment"`
	APIVersion string `yaml:"api_version" toml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	Model  string `yaml:"model" toml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: openai, azure, ollama, gemini.
	Provider   string `yaml:"provider" toml:"provider"`
	Model      string `yaml:"model" toml:"model"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	// Backend is sqlite (default) or qdrant.
	Backend string       `yaml:"backend" toml:"backend"`
	Path    string       `yaml:"path" toml:"path"`
	Metric  string       `yaml:"metric" toml:"metric"`
	Qdrant  QdrantConfig `yaml:"qdrant" toml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port"`
	Collection string `yaml:"collection" toml:"collection"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	TLS        bool   `yaml:"tls" toml:"tls"`
}

// RAGConfig tunes chunking and retrieval.
type RAGConfig struct {
	ChunkSize        int    `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap" toml:"chunk_overlap"`
	TopK             int    `yaml:"top_k" toml:"top_k"`
	EmbedBatchSize   int    `yaml:"embed_batch_size" toml:"embed_batch_size"`
	MaxContextTokens int    `yaml:"max_context_tokens" toml:"max_context_tokens"`
	DefaultPolicy    string `yaml:"default_policy" toml:"default_policy"`
	// PolicyDir is re-ingested on the server's reingest schedule.
	PolicyDir string `yaml:"policy_dir" toml:"policy_dir"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var HRASSIST_API_KEY.
	APIKey     string `yaml:"api_key" toml:"api_key"`
	UploadDir  string `yaml:"upload_dir" toml:"upload_dir"`
	AskTimeout string `yaml:"ask_timeout" toml:"ask_timeout"`
	// ReingestSchedule is a cron expression ("@daily", "0 3 * * *") for
	// rebuilding the index from the policy directory.
	ReingestSchedule string `yaml:"reingest_schedule" toml:"reingest_schedule"`
}

// HRISConfig points the HRIS tools at a real system. Empty URL selects the mock.
type HRISConfig struct {
	APIURL     string `yaml:"api_url" toml:"api_url"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	EmployeeID string `yaml:"employee_id" toml:"employee_id"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format" toml:"format"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path" toml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key" toml:"public_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Host      string `yaml:"host" toml:"host"`
}

// envMapping maps YAML config fields to their env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_PATH", func(c *Config) string { return c.Index.Path }},
	{"INDEX_METRIC", func(c *Config) string { return c.Index.Metric }},
	{"QDRANT_HOST", func(c *Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Index.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Index.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Index.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Index.Qdrant.TLS) }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.RAG.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.RAG.ChunkOverlap) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.RAG.TopK) }},
	{"EMBED_BATCH_SIZE", func(c *Config) string { return intStr(c.RAG.EmbedBatchSize) }},
	{"MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.RAG.MaxContextTokens) }},
	{"HRASSIST_DEFAULT_POLICY", func(c *Config) string { return c.RAG.DefaultPolicy }},
	{"HRASSIST_POLICY_DIR", func(c *Config) string { return c.RAG.PolicyDir }},
	{"HRASSIST_HOST", func(c *Config) string { return c.Server.Host }},
	{"HRASSIST_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"HRASSIST_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"HRASSIST_UPLOAD_DIR", func(c *Config) string { return c.Server.UploadDir }},
	{"ASK_TIMEOUT", func(c *Config) string { return c.Server.AskTimeout }},
	{"HRASSIST_REINGEST_SCHEDULE", func(c *Config) string { return c.Server.ReingestSchedule }},
	{"HRIS_API_URL", func(c *Config) string { return c.HRIS.APIURL }},
	{"HRIS_API_KEY", func(c *Config) string { return c.HRIS.APIKey }},
	{"HRIS_EMPLOYEE_ID", func(c *Config) string { return c.HRIS.EmployeeID }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"HRASSIST_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from path (".env" when empty) into the
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return true, nil
}

// Load reads a config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten.
// Returns the path that was loaded, or "" if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := decode(path, data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded config file",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("HRASSIST_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".hrassist")
		candidates = append(candidates, filepath.Join(dir, "config.yaml"), filepath.Join(dir, "config.toml"))
	}
	candidates = append(candidates, "hrassist.yaml", "hrassist.toml")
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// decode parses data as TOML for .toml files and as YAML otherwise.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
