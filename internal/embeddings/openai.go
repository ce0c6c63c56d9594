package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// openaiProvider generates embeddings via the OpenAI API through langchaingo.
type openaiProvider struct {
	embedder  *embeddings.EmbedderImpl
	dimension int
}

func newOpenAIProvider(cfg Config) (*openaiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required for openai backend", ErrInvalidConfig)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &openaiProvider{
		embedder:  embedder,
		dimension: openaiModelDimensions[cfg.Model],
	}, nil
}

// Generate returns the API embedding for the text.
func (p *openaiProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *openaiProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for the HTTP-based backend.
func (p *openaiProvider) Close() error {
	return nil
}

var _ Provider = (*openaiProvider)(nil)
