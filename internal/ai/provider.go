// Package ai turns a page snapshot and a natural-language request into a test
// case using a hosted language model.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/v0xg/pagehelper/internal/config"
	"github.com/v0xg/pagehelper/internal/plan"
	"go.uber.org/zap"
)

// ErrNoCase is returned when a model response holds no usable case.
var ErrNoCase = errors.New("no test case in model response")

// Provider generates test cases.
type Provider interface {
	GenerateCase(ctx context.Context, page *Page, prompt string) (*plan.Case, error)
}

// completer sends one system + user prompt pair and returns the reply text.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
	name() string
}

// NewProvider creates the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		c   completer
		err error
	)
	switch cfg.Provider {
	case "claude", "anthropic":
		c, err = newClaude(cfg)
	case "openai", "gpt":
		c, err = newOpenAI(cfg)
	case "gemini", "google":
		c, err = newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai, gemini)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &generator{llm: c, logger: logger.Named("ai")}, nil
}

type generator struct {
	llm    completer
	logger *zap.Logger
}

func (g *generator) GenerateCase(ctx context.Context, page *Page, prompt string) (*plan.Case, error) {
	user, err := buildUserPrompt(page, prompt)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Requesting test case.", zap.String("provider", g.llm.name()), zap.Int("prompt_bytes", len(user)))
	text, err := g.llm.complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", g.llm.name(), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty response from %s", g.llm.name())
	}

	c, err := parseCase(text)
	if err != nil {
		g.logger.Warn("Unparseable model response.", zap.String("provider", g.llm.name()), zap.String("response", text))
		return nil, fmt.Errorf("failed to parse %s response: %w", g.llm.name(), err)
	}
	g.logger.Info("Test case generated.",
		zap.String("name", c.Name),
		zap.Int("operations", len(c.Operations)),
		zap.Int("validations", len(c.Validations)))
	return c, nil
}

// parseCase extracts the first JSON object from a response that may carry
// surrounding prose or a code fence and decodes it as a case.
func parseCase(response string) (*plan.Case, error) {
	var c plan.Case
	if err := json.Unmarshal([]byte(response), &c); err != nil {
		raw, ok := extractObject(response)
		if !ok {
			return nil, fmt.Errorf("%w: no JSON object found", ErrNoCase)
		}
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("failed to parse extracted JSON: %w", err)
		}
	}

	if c.Empty() {
		return nil, fmt.Errorf("%w: case has no operations or validations", ErrNoCase)
	}
	if c.Name == "" {
		c.Name = "generated case"
	}
	suite := plan.Suite{Cases: []plan.Case{c}}
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// extractObject returns the first balanced {...} span, ignoring braces inside
// JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
