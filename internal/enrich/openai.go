package enrich

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"harmonia/internal/core"
)

const (
	openAITemperature  = 0.1
	openAIMaxTokens    = 1000
	openAIDefaultModel = "gpt-4o-mini"
)

type openAIClient struct {
	config *core.EnrichConfig
	logger *zap.Logger
	client *openai.Client
}

func newOpenAIClient(config *core.EnrichConfig, logger *zap.Logger) (*openAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(config.APIKey))

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &openAIClient{
		config: config,
		logger: logger,
		client: &client,
	}, nil
}

func (o *openAIClient) rank(ctx context.Context, system, payload string) (string, error) {
	o.logger.Debug("Calling OpenAI for release ranking",
		zap.String("model", o.config.Model))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(payload),
		},
		Model:       o.getModel(),
		Temperature: openai.Float(openAITemperature),
		MaxTokens:   openai.Int(openAIMaxTokens),
	})
	if err != nil {
		o.logger.Error("OpenAI API call failed", zap.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}

func (o *openAIClient) getModel() shared.ChatModel {
	if o.config.Model != "" {
		return o.config.Model
	}
	return openAIDefaultModel
}
