package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Summarizer turns a prompt into a human-readable answer.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// OpenAI is a Summarizer backed by any OpenAI-compatible chat endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewOpenAI builds a client; an empty baseURL targets the OpenAI API.
func NewOpenAI(apiKey, baseURL, model string, log *zap.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("AI API key not set")
	}
	if model == "" {
		model = "gpt-4o-mini"
		log.Warn("AI model not set, defaulting", zap.String("model", model))
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	log.Info("initializing AI client", zap.String("model", model), zap.String("base_url", cfg.BaseURL))
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, log: log}, nil
}

// Summarize sends prompt as a single user message.
func (o *OpenAI) Summarize(ctx context.Context, prompt string) (string, error) {
	o.log.Debug("requesting completion", zap.String("model", o.model), zap.Int("prompt_len", len(prompt)))
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	o.log.Debug("completion received", zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}
