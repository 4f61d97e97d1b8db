package enrich

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"harmonia/internal/core"
)

const (
	anthropicTemperature  = 0.1
	anthropicMaxTokens    = 1000
	anthropicDefaultModel = "claude-3-5-haiku-latest"
)

type anthropicClient struct {
	config *core.EnrichConfig
	logger *zap.Logger
	client *anthropic.Client
}

func newAnthropicClient(config *core.EnrichConfig, logger *zap.Logger) (*anthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(config.APIKey))

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &anthropicClient{
		config: config,
		logger: logger,
		client: &client,
	}, nil
}

func (a *anthropicClient) rank(ctx context.Context, system, payload string) (string, error) {
	model := a.config.Model
	if model == "" {
		model = anthropicDefaultModel
	}

	a.logger.Debug("Calling Anthropic for release ranking",
		zap.String("model", model))

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{{
			Text: system,
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(payload)),
		},
		Temperature: anthropic.Float(anthropicTemperature),
	})
	if err != nil {
		a.logger.Error("Anthropic API call failed", zap.Error(err))
		return "", fmt.Errorf("Anthropic API call failed: %w", err)
	}

	if len(message.Content) == 0 {
		return "", fmt.Errorf("no response from Anthropic")
	}

	return message.Content[0].Text, nil
}
