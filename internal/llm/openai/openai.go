// Package openai provides a generation provider for OpenAI-compatible chat
// completion APIs (OpenAI, Groq, vLLM, Ollama, etc.).
package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/notabene-labs/notabene/internal/llm"
)

// Client implements llm.Provider over an OpenAI-compatible chat API.
type Client struct {
	client *goopenai.Client
	model  string
}

// New creates an OpenAI-compatible provider. An empty baseURL targets the
// OpenAI API; self-hosted endpoints rarely check the key, so a placeholder
// key is accepted.
func New(apiKey, model, baseURL string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *Client) Name() string { return "openai" }

// Complete sends the prompt as a chat completion and returns the first choice.
func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	var msgs []goopenai.ChatCompletionMessage
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: prompt.SystemPrompt,
		})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	req := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	}
	if opts != nil {
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
		if opts.Temperature != nil {
			req.Temperature = float32(*opts.Temperature)
		}
		if opts.TopP != nil {
			req.TopP = float32(*opts.TopP)
		}
		if len(opts.StopSeqs) > 0 {
			req.Stop = opts.StopSeqs
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: response has no choices")
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   string(choice.FinishReason),
	}, nil
}

var _ llm.Provider = (*Client)(nil)
