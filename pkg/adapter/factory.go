package adapter

import (
	"fmt"

	"github.com/sidv1711/slack-bot/pkg/config"
)

// New creates the adapter selected by cfg.Provider.
func New(cfg config.LLMConfig) (Adapter, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIAdapter(cfg.OpenAIAPIKey)
	case "anthropic":
		return NewAnthropicAdapter(cfg.AnthropicAPIKey)
	case "google":
		return NewGoogleAdapter(cfg.GoogleAPIKey)
	case "deepseek":
		return NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
