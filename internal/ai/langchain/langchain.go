// Package langchain adapts OpenAI and Anthropic chat models from langchaingo to ai.Generator.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/logger"
	"github.com/phonescreen-ai/phonescreen/internal/utils"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-sonnet-latest"
	defaultTemperature    = 0.2
	logPreviewLen         = 200
)

type model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config selects the provider and model. BaseURL only applies to OpenAI compatible endpoints.
type Config struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api-key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base-url"`
}

type Generator struct {
	llm      model
	provider string
	model    string
	logger   *zap.Logger
}

// New builds the langchaingo client for cfg.Provider.
func New(log *zap.Logger, cfg Config) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%s api key is required", cfg.Provider)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	name := strings.TrimSpace(cfg.Model)

	var (
		llm model
		err error
	)

	switch provider {
	case ProviderOpenAI:
		if name == "" {
			name = defaultOpenAIModel
		}
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(name),
		}
		if base := strings.TrimSpace(cfg.BaseURL); base != "" {
			opts = append(opts, openai.WithBaseURL(base))
		}
		llm, err = openai.New(opts...)
	case ProviderAnthropic:
		if name == "" {
			name = defaultAnthropicModel
		}
		llm, err = anthropic.New(
			anthropic.WithToken(apiKey),
			anthropic.WithModel(name),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}

	return newGenerator(llm, provider, name, log), nil
}

func newGenerator(llm model, provider, name string, log *zap.Logger) *Generator {
	return &Generator{
		llm:      llm,
		provider: provider,
		model:    name,
		logger:   logger.WithAI(log, provider, name),
	}
}

func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	messages := make([]llms.MessageContent, 0, 2)
	if system = strings.TrimSpace(system); system != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, message))

	g.logger.Debug("llm request",
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, logPreviewLen)),
	)

	resp, err := g.llm.GenerateContent(ctx, messages, llms.WithTemperature(defaultTemperature))
	if err != nil {
		return "", fmt.Errorf("%s generate content: %w", g.provider, err)
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("%s returned no choices", g.provider)
	}

	output := strings.TrimSpace(resp.Choices[0].Content)
	if output == "" {
		return "", fmt.Errorf("%s returned empty response", g.provider)
	}

	g.logger.Debug("llm response", zap.String("response_preview", utils.TruncateForLog(output, logPreviewLen)))
	return output, nil
}

func (g *Generator) Model() string {
	return g.model
}
