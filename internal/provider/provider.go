// Package provider constructs the chat model backing the llm matcher
// engine from provider configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/MEKXH/aegis/internal/config"
)

// NewChatModel creates a ChatModel based on configuration. The first
// configured provider wins, checked in order: claude, openai, ollama.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ChatModel, error) {
	p := cfg.Providers
	m := cfg.Matcher

	switch {
	case p.Claude.APIKey != "":
		return newClaudeModel(ctx, p.Claude, m)
	case p.OpenAI.APIKey != "":
		return newOpenAIModel(ctx, p.OpenAI, m)
	case p.Ollama.BaseURL != "":
		return newOllamaModel(ctx, p.Ollama, m)
	default:
		return nil, fmt.Errorf("no provider configured: set api_key for at least one provider")
	}
}

func newClaudeModel(ctx context.Context, p config.ProviderConfig, m config.MatcherConfig) (model.ChatModel, error) {
	cfg := &claude.Config{
		APIKey:      p.APIKey,
		Model:       m.Model,
		MaxTokens:   m.MaxTokens,
		Temperature: toFloat32Ptr(m.Temperature),
	}
	if p.BaseURL != "" {
		cfg.BaseURL = &p.BaseURL
	}
	return claude.NewChatModel(ctx, cfg)
}

func newOpenAIModel(ctx context.Context, p config.ProviderConfig, m config.MatcherConfig) (model.ChatModel, error) {
	cfg := &openai.ChatModelConfig{
		Model:       m.Model,
		APIKey:      p.APIKey,
		Temperature: toFloat32Ptr(m.Temperature),
		MaxTokens:   toIntPtr(m.MaxTokens),
	}
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	return openai.NewChatModel(ctx, cfg)
}

func newOllamaModel(ctx context.Context, p config.ProviderConfig, m config.MatcherConfig) (model.ChatModel, error) {
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   m.Model,
	})
}

func toFloat32Ptr(f float64) *float32 {
	v := float32(f)
	return &v
}

func toIntPtr(i int) *int {
	return &i
}
