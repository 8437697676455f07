package embedder

import (
	"log/slog"
	"strings"
)

// knownChatModelFragments are name fragments that identify chat/completion
// models which are not suitable for embedding.
var knownChatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"gemini-",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
}

// looksLikeChatModel reports whether model resembles a known chat model
// rather than a dedicated embedding model. Names containing "embed" are
// always treated as embedding models.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, frag := range knownChatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Warn logs configuration smells that do not prevent startup: an embedding
// backend silently inherited from MODEL_PROVIDER, or a model name that looks
// like a chat model.
func (s Settings) Warn(log *slog.Logger, explicitProvider bool) {
	if !explicitProvider && s.Backend != defaultProvider {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER",
			slog.String("backend", s.Backend),
			slog.String("hint", "set EMBEDDING_PROVIDER to be explicit"),
		)
	}
	if looksLikeChatModel(s.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", s.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
}
