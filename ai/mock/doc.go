// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder and ai.AIProvider
// for use in unit tests. The mocks allow tests to run without external AI
// service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	mockEmbedder := mock.NewMockEmbedder().
//	    WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
//	        return nil, ai.NewRateLimitError(429, errors.New("slow down"))
//	    })
//
//	// Check call counts
//	count := mockEmbedder.CallCount()
//
// The default embedder returns DefaultDimension-wide vectors derived from
// an FNV hash of the input, so equal text always yields equal vectors.
package mock
