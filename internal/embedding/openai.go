package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultModel is the default OpenAI embedding model.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension matches DefaultModel's native output size.
	DefaultDimension = 1536

	// DefaultBatchConcurrency bounds concurrent per-text embedding calls
	// in EmbedBatch, which sends one request per text.
	DefaultBatchConcurrency = 4
)

// OpenAIProvider implements Provider against the OpenAI embeddings API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	dimension   int
	concurrency int
}

// OpenAIProviderOption configures an OpenAIProvider.
type OpenAIProviderOption func(*OpenAIProvider)

// WithEmbeddingModel overrides the default embedding model.
func WithEmbeddingModel(model string) OpenAIProviderOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDimension overrides the default output dimension, matching
// QDRANT_VECTOR_SIZE so collection and provider agree.
func WithDimension(dim int) OpenAIProviderOption {
	return func(p *OpenAIProvider) {
		if dim > 0 {
			p.dimension = dim
		}
	}
}

// WithBatchConcurrency overrides the default per-text fan-out concurrency.
func WithBatchConcurrency(n int) OpenAIProviderOption {
	return func(p *OpenAIProvider) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewOpenAIProvider builds an embedding provider authenticated with apiKey.
func NewOpenAIProvider(apiKey string, opts ...OpenAIProviderOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       DefaultModel,
		dimension:   DefaultDimension,
		concurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Embed generates a single embedding vector.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: openai.Int(int64(p.dimension)),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: empty response")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch generates embeddings for multiple texts, one call per text
// bounded by a concurrency semaphore. Splitting into sub-batches under a
// character budget is the embedding worker's responsibility; this method
// embeds whatever it is given.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.concurrency)

	for i, text := range texts {
		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}

			vec, err := p.Embed(ctx, t)
			if err != nil {
				errs[idx] = fmt.Errorf("index %d: %w", idx, err)
				return
			}
			results[idx] = vec
		}(i, text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embedding: batch failed: %w", err)
		}
	}
	return results, nil
}

// Dimension returns the configured output dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// ModelName returns the configured embedding model.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

var _ Provider = (*OpenAIProvider)(nil)
