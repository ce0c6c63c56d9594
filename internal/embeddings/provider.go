// Package embeddings provides embedding generation via multiple backends.
//
// A backend is selected by configuration: "openai" uses the OpenAI embedding
// API through langchaingo, "fastembed" runs a local ONNX model. Every provider
// returned by NewProvider is wrapped so that Generate never fails: when the
// selected backend is unavailable (missing credentials, missing native
// dependency, network failure, timeout) the call degrades to a deterministic
// pseudo-random vector with a logged warning.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Backend identifies an embedding backend implementation.
type Backend string

const (
	// BackendOpenAI uses the OpenAI embedding API (remote).
	BackendOpenAI Backend = "openai"
	// BackendFastEmbed uses a local ONNX model via fastembed.
	BackendFastEmbed Backend = "fastembed"
)

// Provider generates vector embeddings from text.
type Provider interface {
	// Generate returns an embedding of Dimension() floats for the text.
	Generate(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Backend selects the implementation: "openai" or "fastembed".
	Backend Backend `koanf:"backend"`

	// Model is the embedding model name.
	// Default: text-embedding-ada-002 (openai), all-MiniLM-L6-v2 (fastembed).
	Model string `koanf:"model"`

	// APIKey is the API key for the openai backend.
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the API base URL (openai backend only).
	BaseURL string `koanf:"base_url"`

	// CacheDir is the model cache directory (fastembed backend only).
	CacheDir string `koanf:"cache_dir"`

	// Timeout bounds a single embedding call. A timed-out call is treated
	// as backend-unavailable and resolved via the deterministic fallback.
	Timeout time.Duration `koanf:"timeout"`
}

// openaiModelDimensions maps OpenAI embedding models to their output size.
var openaiModelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// fastembedModelDimensions maps local models to their output size.
var fastembedModelDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"all-MiniLM-L6-v2":                       384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-base-en-v1.5":                  768,
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendFastEmbed
	}
	if c.Model == "" {
		switch c.Backend {
		case BackendOpenAI:
			c.Model = "text-embedding-ada-002"
		default:
			c.Model = "all-MiniLM-L6-v2"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenAI, BackendFastEmbed:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Dimension() == 0 {
		return fmt.Errorf("%w: unknown model %q for backend %q", ErrInvalidConfig, c.Model, c.Backend)
	}
	return nil
}

// Dimension returns the output dimension for the configured backend/model,
// or 0 if the model is unknown.
func (c *Config) Dimension() int {
	switch c.Backend {
	case BackendOpenAI:
		return openaiModelDimensions[c.Model]
	case BackendFastEmbed:
		return fastembedModelDimensions[c.Model]
	default:
		return 0
	}
}

// NewProvider creates an embedding provider for the configured backend,
// wrapped with the deterministic fallback so that Generate never fails.
//
// If the backend itself cannot be constructed (missing API key, missing ONNX
// runtime), a warning is logged and the returned provider serves deterministic
// vectors only.
func NewProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var backend Provider
	var err error
	switch cfg.Backend {
	case BackendOpenAI:
		backend, err = newOpenAIProvider(cfg)
	case BackendFastEmbed:
		backend, err = newFastEmbedProvider(cfg)
	}
	if err != nil {
		logger.Warn("embedding backend unavailable, using deterministic fallback vectors",
			zap.String("backend", string(cfg.Backend)),
			zap.String("model", cfg.Model),
			zap.Error(err),
		)
		backend = nil
	}

	return newFallback(backend, cfg.Dimension(), cfg.Timeout, logger), nil
}
