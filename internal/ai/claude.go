package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/v0xg/pagehelper/internal/config"
)

// claude talks to Anthropic's Messages API.
type claude struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

func newClaude(cfg config.AIConfig) (*claude, error) {
	if cfg.AnthropicKey == "" {
		return nil, fmt.Errorf("PAGEHELPER_ANTHROPIC_KEY or ANTHROPIC_API_KEY environment variable required")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicKey))

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return &claude{client: &client, model: model, maxTokens: int64(maxTokens(cfg))}, nil
}

func (p *claude) name() string { return "Claude" }

func (p *claude) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}

func maxTokens(cfg config.AIConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 2048
}
