// Package openai provides an embedding provider for OpenAI-compatible
// embeddings APIs (OpenAI, vLLM, Ollama, text-embeddings-inference, etc.).
package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/notabene-labs/notabene/internal/embedding"
)

// modelDimensions maps known model identifiers to their output dimension.
// Models absent from the table fall back to the configured override.
var modelDimensions = map[string]int{
	"text-embedding-3-small":                  1536,
	"text-embedding-3-large":                  3072,
	"text-embedding-ada-002":                  1536,
	"sentence-transformers/all-MiniLM-L6-v2":  384,
	"sentence-transformers/all-MiniLM-L12-v2": 384,
	"nomic-embed-text":                        768,
	"mxbai-embed-large":                       1024,
}

// Provider implements embedding.Provider over an OpenAI-compatible API.
type Provider struct {
	client    *goopenai.Client
	model     string
	dimension int
}

var _ embedding.Provider = (*Provider)(nil)

// New creates a provider for the given model identifier. The dimension is
// resolved from the known-model table, then from cfg.Dimension; a model with
// neither is a configuration error.
func New(cfg embedding.Config, model string) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model identifier is empty")
	}

	dim, ok := modelDimensions[model]
	if !ok {
		dim = cfg.Dimension
	}
	if dim <= 0 {
		return nil, fmt.Errorf("unknown embedding dimension for model %q: set embedding.dimension", model)
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:    goopenai.NewClientWithConfig(clientCfg),
		model:     model,
		dimension: dim,
	}, nil
}

// Name returns the model identifier this provider serves.
func (p *Provider) Name() string { return p.model }

// Dimension returns the fixed output vector dimension.
func (p *Provider) Dimension() int { return p.dimension }

// EmbedBatch returns one vector per input text, in input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	for i, v := range vectors {
		if len(v) != p.dimension {
			return nil, fmt.Errorf("model %q returned %d-dim vector for text %d, configured for %d",
				p.model, len(v), i, p.dimension)
		}
	}
	return vectors, nil
}
