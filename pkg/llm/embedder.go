package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns a query string into a vector comparable against the
// vector store's stored embeddings. The RAG engine treats a nil Embedder
// the same way the mapper treats a nil Client: a degenerate
// "model unavailable" case that the caller must handle without panicking.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder wraps langchaingo's embeddings.EmbedderImpl over an
// openai.LLM, so the same LLM_BASE_URL/API_KEY configuration that backs
// chat completions also backs embeddings.
type OpenAIEmbedder struct {
	inner *embeddings.EmbedderImpl
}

// NewOpenAIEmbedder builds an Embedder against the given OpenAI-compatible
// endpoint.
func NewOpenAIEmbedder(baseURL, apiKey, model string) (*OpenAIEmbedder, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: build openai embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("llm: build embedder: %w", err)
	}
	return &OpenAIEmbedder{inner: embedder}, nil
}

// EmbedQuery embeds a single piece of query text.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("llm: embed query: %w", err)
	}
	return vec, nil
}
