package providers

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIEmbedder requests embeddings from an OpenAI-compatible endpoint,
// grounded on the teacher's pkg/llm.Client.CreateEmbedding.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	logger    *zap.Logger
}

// EmbedderConfig configures an OpenAIEmbedder.
type EmbedderConfig struct {
	Endpoint  string
	APIKey    string
	Model     string
	Dimension int
}

// NewOpenAIEmbedder constructs an Embedder over cfg.
func NewOpenAIEmbedder(cfg EmbedderConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		logger:    logger.Named("embedder"),
	}, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimension {
		// Fatal per spec.md §3: "embed_en dimension is fixed for the
		// lifetime of the deployment; swapping dimension forces a rebuild."
		return nil, fmt.Errorf("embedding dimension drift: got %d, configured %d", len(vec), e.dimension)
	}
	return vec, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }
