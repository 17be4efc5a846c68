package openai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/poiesic/kbembed/ai"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder implements ai.Embedder using the OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	logger *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.EmbeddingHost
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Embedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  openai.EmbeddingModel(config.EmbeddingModel),
		logger: slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		embedErr := classifyError(err)
		e.logger.Debug("failed to generate embedding", "kind", embedErr.Kind, "status", embedErr.StatusCode, "err", err)
		return nil, embedErr
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		e.logger.Warn("embedder returned empty result")
		return nil, ai.NewProviderError(0, ai.ErrEmptyEmbedding)
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i := range src {
		vec[i] = float32(src[i])
	}
	return vec, nil
}

// classifyError maps go-openai client errors to ai.EmbedError.
func classifyError(err error) *ai.EmbedError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return ai.ErrorFromStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return ai.ErrorFromStatus(reqErr.HTTPStatusCode, err)
	}
	return ai.NewTransportError(err)
}
