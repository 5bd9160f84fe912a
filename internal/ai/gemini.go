package ai

import (
	"context"
	"fmt"

	"github.com/v0xg/pagehelper/internal/config"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// gemini talks to the Gemini API.
type gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func newGemini(ctx context.Context, cfg config.AIConfig) (*gemini, error) {
	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("PAGEHELPER_GEMINI_KEY or GEMINI_API_KEY environment variable required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &gemini{client: client, model: model, maxTokens: int32(maxTokens(cfg))}, nil
}

func (p *gemini) name() string { return "Gemini" }

func (p *gemini) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		MaxOutputTokens:   p.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
