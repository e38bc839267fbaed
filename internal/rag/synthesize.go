package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/notabene-labs/notabene/internal/llm"
	"github.com/notabene-labs/notabene/internal/observability"
)

const synthSystemPrompt = "You are a helpful assistant. Answer the question using only the provided context. If the context does not contain the answer, say that you cannot answer from the available documents."

// fallbackContextChars bounds how much retrieved context the fallback answer
// carries when generation is unavailable.
const fallbackContextChars = 500

const fallbackPrefix = "The language model is unavailable. Showing the most relevant context found:\n\n"

// SynthesizerConfig bounds the generation call.
type SynthesizerConfig struct {
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// DefaultSynthesizerConfig returns the default generation bounds.
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// Synthesizer turns retrieved context and a question into an answer. A
// generation failure is never a hard failure: retrieval having succeeded is
// a partial success worth surfacing, so any provider error yields a
// deterministic fallback answer built from the context instead.
type Synthesizer struct {
	provider llm.Provider // nil disables generation; every answer falls back
	cfg      SynthesizerConfig
	logger   *slog.Logger
	metrics  *observability.Metrics // nil disables recording
}

// NewSynthesizer creates a Synthesizer. provider may be nil.
func NewSynthesizer(provider llm.Provider, cfg SynthesizerConfig, logger *slog.Logger) *Synthesizer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultSynthesizerConfig().MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultSynthesizerConfig().Temperature
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{provider: provider, cfg: cfg, logger: logger}
}

// SetMetrics enables Prometheus recording of generation outcomes.
func (s *Synthesizer) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Synthesize answers the question from the retrieved content blocks, in the
// order retrieval produced them. It never returns an error.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, contents []string) string {
	contextText := strings.Join(contents, "\n\n")

	if s.provider == nil {
		s.logger.Debug("no LLM provider configured, using fallback answer")
		return fallbackAnswer(contextText)
	}

	prompt := &llm.Prompt{
		SystemPrompt: synthSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)},
		},
	}
	opts := &llm.RequestOptions{
		MaxTokens:   llm.Int(s.cfg.MaxTokens),
		Temperature: llm.Float(s.cfg.Temperature),
	}

	start := time.Now()
	llmCtx, span := observability.StartLLMSpan(ctx, s.provider.Name(), "")
	resp, err := s.provider.Complete(llmCtx, prompt, opts)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		s.logger.Warn("generation failed, returning fallback answer",
			"provider", s.provider.Name(), "error", err)
		s.recordOutcome(ctx, "", "fallback", time.Since(start), nil, err)
		return fallbackAnswer(contextText)
	}
	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(start))
	span.End()

	answer := llm.StripThinkingTags(resp.Content)
	if answer == "" {
		s.logger.Warn("generation returned empty content, returning fallback answer",
			"provider", s.provider.Name(), "model", resp.Model)
		s.recordOutcome(ctx, resp.Model, "fallback", time.Since(start), resp, nil)
		return fallbackAnswer(contextText)
	}
	s.recordOutcome(ctx, resp.Model, "success", time.Since(start), resp, nil)
	return answer
}

func (s *Synthesizer) recordOutcome(ctx context.Context, model, status string, dur time.Duration, resp *llm.Response, cause error) {
	inTokens, outTokens := 0, 0
	if resp != nil {
		inTokens, outTokens = resp.InputTokens, resp.OutputTokens
	}
	if s.metrics != nil {
		s.metrics.RecordLLMRequest(s.provider.Name(), model, status, dur.Seconds(), inTokens, outTokens)
	}
	if status == "success" {
		observability.Audit().LogLLMResponse(ctx, s.provider.Name(), model, dur, inTokens, outTokens)
	} else {
		observability.Audit().LogLLMFallback(ctx, s.provider.Name(), model, cause)
	}
}

// fallbackAnswer is the deterministic answer used when generation fails: a
// fixed prefix plus the leading characters of the assembled context.
func fallbackAnswer(contextText string) string {
	runes := []rune(contextText)
	if len(runes) > fallbackContextChars {
		runes = runes[:fallbackContextChars]
	}
	return fallbackPrefix + string(runes) + "..."
}
