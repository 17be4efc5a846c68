// Package gemini implements ai.AIProvider on the Google Gemini embedding API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/kbembed/ai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Embedder implements ai.Embedder using a Gemini embedding model.
type Embedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	name   string
	logger *slog.Logger
}

// Provider implements ai.AIProvider and owns the underlying genai client.
type Provider struct {
	embedder *Embedder
	logger   *slog.Logger
}

// NewProvider connects a genai client with the configured API key.
// Extra client options (endpoint overrides, custom HTTP clients) are
// appended after the key.
func NewProvider(ctx context.Context, config *ai.Config, opts ...option.ClientOption) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderGemini {
		return nil, fmt.Errorf("gemini provider: unexpected provider %q", config.Provider)
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(config.APIKey)}, opts...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini provider: %w", err)
	}

	return &Provider{
		embedder: &Embedder{
			client: client,
			model:  client.EmbeddingModel(config.EmbeddingModel),
			name:   config.EmbeddingModel,
			logger: slog.Default().With("component", "gemini-embedder"),
		},
		logger: slog.Default().With("component", "gemini-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close releases the genai client.
func (p *Provider) Close() error {
	p.logger.Debug("closing gemini provider")
	return p.embedder.client.Close()
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("embedding content", "model", e.name, "length", len(text))

	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		embedErr := classifyError(err)
		e.logger.Debug("embedding failed", "kind", embedErr.Kind, "err", err)
		return nil, embedErr
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ai.NewProviderError(0, ai.ErrEmptyEmbedding)
	}
	return res.Embedding.Values, nil
}

// classifyError maps gRPC status codes and REST googleapi errors to ai.EmbedError.
func classifyError(err error) *ai.EmbedError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return ai.ErrorFromStatus(apiErr.Code, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ai.NewTransportError(err)
	}

	switch status.Code(err) {
	case codes.ResourceExhausted:
		return ai.NewRateLimitError(0, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied,
		codes.Unauthenticated, codes.NotFound, codes.OutOfRange:
		return ai.NewProviderError(0, err)
	default:
		return ai.NewTransportError(err)
	}
}
