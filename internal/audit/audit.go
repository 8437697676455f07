// Package audit records CLI command invocations as structured log entries:
// the command, the config file it ran with, and a sanitised view of the
// environment. Secrets are logged as presence/absence only, never values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type auditEntry struct {
	key    string
	secret bool
}

// auditKeys is the ordered list of env vars included in every entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"OPENAI_BASE_URL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"INDEX_BACKEND", false},
	{"INDEX_PATH", false},
	{"INDEX_METRIC", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"CHUNK_SIZE", false},
	{"CHUNK_OVERLAP", false},
	{"RETRIEVAL_TOP_K", false},
	{"HRASSIST_API_KEY", true},
	{"HRASSIST_HISTORY_DB", false},
	{"HRASSIST_UPLOAD_DIR", false},
	{"HRIS_API_URL", false},
	{"HRIS_API_KEY", true},
	{"HRIS_EMPLOYEE_ID", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

var secretEnvKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// Start describes where a command got its configuration from.
type Start struct {
	Command    string
	ConfigPath string
	DotEnv     bool
}

// LogCommandStart emits the audit entry for a command that is about to run.
func LogCommandStart(ctx context.Context, log *slog.Logger, s Start) {
	attrs := []slog.Attr{
		slog.String("command", s.Command),
		slog.String("config_file", sanitiseConfigPath(s.ConfigPath)),
		slog.Bool("dotenv", s.DotEnv),
	}
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for known secret keys and the value
// (or "unset") for everything else.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns p with the home directory shortened to "~", or
// "none" when empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
