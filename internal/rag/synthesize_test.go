package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/notabene-labs/notabene/internal/llm"
)

// fakeLLM captures the prompt it receives and serves a canned response.
type fakeLLM struct {
	resp   *llm.Response
	err    error
	prompt *llm.Prompt
	opts   *llm.RequestOptions
}

func (f *fakeLLM) Complete(_ context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	f.prompt = prompt
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func TestSynthesize_ReturnsGeneratedText(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "the answer is 42"}}
	s := NewSynthesizer(provider, DefaultSynthesizerConfig(), testLogger())

	got := s.Synthesize(context.Background(), "What is the answer?", []string{"chunk one", "chunk two"})
	if got != "the answer is 42" {
		t.Fatalf("expected generated text, got %q", got)
	}
}

func TestSynthesize_PromptContainsContextAndQuestion(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "ok"}}
	s := NewSynthesizer(provider, DefaultSynthesizerConfig(), testLogger())

	s.Synthesize(context.Background(), "What is X?", []string{"alpha", "beta", "gamma"})

	if provider.prompt.SystemPrompt == "" {
		t.Fatal("expected a system prompt")
	}
	if len(provider.prompt.Messages) != 1 || provider.prompt.Messages[0].Role != llm.RoleUser {
		t.Fatalf("expected one user message, got %+v", provider.prompt.Messages)
	}

	body := provider.prompt.Messages[0].Content
	if !strings.Contains(body, "alpha\n\nbeta\n\ngamma") {
		t.Errorf("context blocks must be joined by blank lines, got %q", body)
	}
	if !strings.Contains(body, "What is X?") {
		t.Errorf("question missing from prompt: %q", body)
	}
}

func TestSynthesize_UsesConfiguredBounds(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "ok"}}
	s := NewSynthesizer(provider, SynthesizerConfig{MaxTokens: 512, Temperature: 0.2}, testLogger())

	s.Synthesize(context.Background(), "q", []string{"ctx"})

	if provider.opts == nil || provider.opts.MaxTokens == nil || *provider.opts.MaxTokens != 512 {
		t.Fatalf("expected max tokens 512, got %+v", provider.opts)
	}
	if provider.opts.Temperature == nil || *provider.opts.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %+v", provider.opts)
	}
}

func TestSynthesize_DefaultBounds(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "ok"}}
	s := NewSynthesizer(provider, SynthesizerConfig{}, testLogger())

	s.Synthesize(context.Background(), "q", []string{"ctx"})

	if *provider.opts.MaxTokens != 1000 {
		t.Fatalf("expected default max tokens 1000, got %d", *provider.opts.MaxTokens)
	}
	if *provider.opts.Temperature != 0.7 {
		t.Fatalf("expected default temperature 0.7, got %f", *provider.opts.Temperature)
	}
}

func TestSynthesize_FallbackOnProviderError(t *testing.T) {
	provider := &fakeLLM{err: errors.New("connection refused")}
	s := NewSynthesizer(provider, DefaultSynthesizerConfig(), testLogger())

	got := s.Synthesize(context.Background(), "q", []string{"important context"})
	if !strings.HasPrefix(got, fallbackPrefix) {
		t.Fatalf("expected fallback answer, got %q", got)
	}
	if !strings.Contains(got, "important context") {
		t.Fatalf("fallback must carry the retrieved context, got %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("fallback must end with ellipsis, got %q", got)
	}
}

func TestSynthesize_FallbackDeterministic(t *testing.T) {
	provider := &fakeLLM{err: errors.New("timeout")}
	s := NewSynthesizer(provider, DefaultSynthesizerConfig(), testLogger())

	contents := []string{"chunk a", "chunk b"}
	first := s.Synthesize(context.Background(), "q", contents)
	second := s.Synthesize(context.Background(), "q", contents)
	if first != second {
		t.Fatal("fallback answer must be deterministic for the same context")
	}
}

func TestSynthesize_FallbackOnEmptyContent(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "   "}}
	s := NewSynthesizer(provider, DefaultSynthesizerConfig(), testLogger())

	got := s.Synthesize(context.Background(), "q", []string{"ctx"})
	if !strings.HasPrefix(got, fallbackPrefix) {
		t.Fatalf("expected fallback for empty content, got %q", got)
	}
}

func TestSynthesize_NilProviderFallsBack(t *testing.T) {
	s := NewSynthesizer(nil, DefaultSynthesizerConfig(), testLogger())

	got := s.Synthesize(context.Background(), "q", []string{"ctx"})
	if !strings.HasPrefix(got, fallbackPrefix) {
		t.Fatalf("expected fallback with no provider, got %q", got)
	}
}

func TestSynthesize_StripsThinkingTags(t *testing.T) {
	provider := &fakeLLM{resp: &llm.Response{Content: "<think>reasoning here</think>visible answer"}}
	s := NewSynthesizer(provider, DefaultSynthesizerConfig(), testLogger())

	got := s.Synthesize(context.Background(), "q", []string{"ctx"})
	if got != "visible answer" {
		t.Fatalf("expected thinking tags stripped, got %q", got)
	}
}

func TestFallbackAnswer_TruncatesLongContext(t *testing.T) {
	long := strings.Repeat("x", 2000)
	got := fallbackAnswer(long)

	want := fallbackPrefix + strings.Repeat("x", fallbackContextChars) + "..."
	if got != want {
		t.Fatalf("unexpected truncation: len=%d", len(got))
	}
}

func TestFallbackAnswer_ShortContextKeptWhole(t *testing.T) {
	got := fallbackAnswer("tiny")
	if got != fallbackPrefix+"tiny..." {
		t.Fatalf("unexpected fallback: %q", got)
	}
}

func TestFallbackAnswer_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ß", 600)
	got := fallbackAnswer(long)

	body := strings.TrimSuffix(strings.TrimPrefix(got, fallbackPrefix), "...")
	runes := []rune(body)
	if len(runes) != fallbackContextChars {
		t.Fatalf("expected %d runes, got %d", fallbackContextChars, len(runes))
	}
	for _, r := range runes {
		if r != 'ß' {
			t.Fatal("multi-byte character split by truncation")
		}
	}
}
