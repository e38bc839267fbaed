// Package llm abstracts the answer-generation backend behind a provider
// interface, with retry and rate-limit wrappers.
package llm

import "context"

// Provider is the interface all generation backends must implement.
// Embeddings are a separate concern; see the embedding package.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// RequestOptions tunes a single completion request. Nil fields fall back to
// provider defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}

// Int returns a pointer to v, for use in RequestOptions literals.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for use in RequestOptions literals.
func Float(v float64) *float64 { return &v }
