// Package tracing connects eino's callback system to Langfuse so that every
// chat model, tool and agent step of the HR assistant is traced when
// credentials are configured.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is the self-hosted Langfuse address used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Settings holds Langfuse credentials.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func SettingsFromEnv() Settings {
	s := Settings{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if s.Host == "" {
		s.Host = defaultHost
	}
	return s
}

// Enabled reports whether both keys are present.
func (s Settings) Enabled() bool { return s.PublicKey != "" && s.SecretKey != "" }

// Setup registers a global Langfuse callback handler when s is enabled and
// returns the flush function to call before exit. When tracing is disabled
// the returned function is a no-op.
func Setup(s Settings, log *slog.Logger) func() {
	if !s.Enabled() {
		log.Debug("tracing: Langfuse not configured")
		return func() {}
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
		Name:      "hrassist",
	})
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: Langfuse enabled", slog.String("host", s.Host))
	return flush
}
