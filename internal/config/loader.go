package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidChatProviders lists known provider names for chat-capable entries.
// "anyllm:<backend>" entries are validated against ValidAnyLLMBackends.
// Used by [Validate] to warn about unrecognised provider names.
var ValidChatProviders = []string{"openai"}

// ValidAnyLLMBackends lists the backends the anyllm provider can construct.
var ValidAnyLLMBackends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"}

// ValidEmbeddingsProviders lists known embeddings provider names.
var ValidEmbeddingsProviders = []string{"openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references in secret fields, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets resolves ${VAR} references in fields that typically carry
// credentials, so keys stay out of config files.
func expandSecrets(cfg *Config) {
	for _, entry := range []*ProviderEntry{
		&cfg.Providers.Chat,
		&cfg.Providers.Summary,
		&cfg.Providers.Feedback,
		&cfg.Providers.Embeddings,
	} {
		entry.APIKey = os.ExpandEnv(entry.APIKey)
	}
	cfg.Database.PostgresURL = os.ExpandEnv(cfg.Database.PostgresURL)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Providers
	if cfg.Providers.Chat.Name == "" {
		errs = append(errs, errors.New("providers.chat.name is required"))
	}
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("summary", cfg.Providers.Summary.Name)
	validateProviderName("feedback", cfg.Providers.Feedback.Name)
	if name := cfg.Providers.Embeddings.Name; name != "" && !slices.Contains(ValidEmbeddingsProviders, name) {
		slog.Warn("unknown embeddings provider name — may be a typo",
			"name", name,
			"known", ValidEmbeddingsProviders,
		)
	}

	// Learning
	if cfg.Learning.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("learning.history_window %d must not be negative", cfg.Learning.HistoryWindow))
	}

	// Database
	if cfg.Database.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("database.embedding_dimensions %d must not be negative", cfg.Database.EmbeddingDimensions))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Database.EmbeddingDimensions == 0 {
		slog.Warn("providers.embeddings is configured but database.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Database.PostgresURL == "" {
		slog.Warn("database.postgres_url is empty; conversations and decks will not survive a restart")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not a known
// chat-capable provider, including anyllm backend names.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if backend, ok := strings.CutPrefix(name, "anyllm:"); ok {
		if !slices.Contains(ValidAnyLLMBackends, backend) {
			slog.Warn("unknown anyllm backend — may be a typo",
				"kind", kind,
				"backend", backend,
				"known", ValidAnyLLMBackends,
			)
		}
		return
	}
	if !slices.Contains(ValidChatProviders, name) {
		slog.Warn("unknown provider name — may be a typo or third-party provider",
			"kind", kind,
			"name", name,
			"known", ValidChatProviders,
		)
	}
}
