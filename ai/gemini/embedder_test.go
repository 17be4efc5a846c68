package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/kbembed/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ai.ErrorKind
	}{
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), ai.KindRateLimit},
		{"invalid argument", status.Error(codes.InvalidArgument, "too long"), ai.KindProvider},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad key"), ai.KindProvider},
		{"unavailable", status.Error(codes.Unavailable, "down"), ai.KindTransport},
		{"rest 429", &googleapi.Error{Code: 429, Message: "slow down"}, ai.KindRateLimit},
		{"rest 400", &googleapi.Error{Code: 400, Message: "bad"}, ai.KindProvider},
		{"deadline", fmt.Errorf("rpc: %w", context.DeadlineExceeded), ai.KindTransport},
		{"plain error", errors.New("connection reset"), ai.KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestNewProvider_RejectsOtherProviders(t *testing.T) {
	cfg := ai.NewConfig(ai.WithAPIKey("k"))
	_, err := NewProvider(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected provider")
}

func TestNewProvider_RequiresKey(t *testing.T) {
	cfg := ai.NewConfig(ai.WithProvider(ai.ProviderGemini), ai.WithEmbeddingModel("gemini-embedding-001"))
	_, err := NewProvider(context.Background(), cfg)
	assert.Error(t, err)
}
