package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/v0xg/pagehelper/internal/config"
)

// openAI talks to the chat completions API.
type openAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func newOpenAI(cfg config.AIConfig) (*openAI, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("PAGEHELPER_OPENAI_KEY or OPENAI_API_KEY environment variable required")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &openAI{client: openai.NewClient(cfg.OpenAIKey), model: model, maxTokens: maxTokens(cfg)}, nil
}

func (p *openAI) name() string { return "OpenAI" }

func (p *openAI) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
