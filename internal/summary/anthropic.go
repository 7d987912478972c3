package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type messageCreator func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)

// anthropicClient summarizes through the Anthropic Messages API.
type anthropicClient struct {
	cfg    Config
	create messageCreator
	logger *zap.Logger
}

func newAnthropicClient(cfg Config, logger *zap.Logger) (*anthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("summary: api key is required")
	}
	cfg.Model = firstNonEmpty(cfg.Model, defaultAnthropicModel)

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &anthropicClient{
		cfg: cfg,
		create: func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
			return client.Messages.New(ctx, params)
		},
		logger: logger.Named("summary"),
	}, nil
}

// Summarize sends the article text with the system prompt and joins the
// returned text blocks.
func (c *anthropicClient) Summarize(ctx context.Context, text string) (string, error) {
	input, err := prepareInput(text, c.cfg.MaxInputChars)
	if err != nil {
		return "", err
	}
	msg, err := c.create(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: c.cfg.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("anthropic messages returned no text")
	}
	return strings.Join(parts, "\n"), nil
}
