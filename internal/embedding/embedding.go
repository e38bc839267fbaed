// Package embedding provides text embedding providers and a process-wide
// provider cache keyed by model identifier.
package embedding

import (
	"context"
	"fmt"
)

// Provider is a named, stateless mapping from text to fixed-dimension vectors.
type Provider interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the fixed output vector dimension.
	Dimension() int
	// Name returns the model identifier this provider serves.
	Name() string
}

// Config configures embedding provider construction.
type Config struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// Model is the default model identifier used when a request names none.
	Model string `mapstructure:"model"`
	// Dimension overrides the per-model dimension table, for models served
	// through OpenAI-compatible gateways that the table does not know.
	Dimension int `mapstructure:"dimension"`
}

// ProviderLoadError reports a failed provider load. Loads are not retried:
// a failing model identifier keeps failing until configuration changes.
type ProviderLoadError struct {
	Model string
	Err   error
}

func (e *ProviderLoadError) Error() string {
	return fmt.Sprintf("loading embedding provider %q: %v", e.Model, e.Err)
}

func (e *ProviderLoadError) Unwrap() error { return e.Err }
