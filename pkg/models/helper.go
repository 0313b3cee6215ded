package models

import (
	"context"
	"fmt"
	"strings"
)

// NewPlanner builds a planner by provider name. Empty apiKey and baseURL
// leave each provider on its own environment defaults.
func NewPlanner(ctx context.Context, provider, model, apiKey, baseURL string) (Planner, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai", "":
		return NewOpenAIPlanner(model, apiKey, baseURL), nil
	case "anthropic", "claude":
		return NewAnthropicPlanner(model, apiKey, baseURL), nil
	case "gemini", "google":
		p, err := NewGeminiPlanner(ctx, model, apiKey, baseURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "ollama":
		p, err := NewOllamaPlanner(model, baseURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "dummy":
		return NewDummyPlanner(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
