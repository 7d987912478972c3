package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	defaultDeepSeekBaseURL = "https://api.deepseek.com"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultDeepSeekModel   = "deepseek-chat"
	defaultOpenAIModel     = "gpt-4o-mini"
)

type completionCreator func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)

// chatClient talks to an OpenAI-compatible chat completions endpoint.
// DeepSeek is reached through the same SDK with its own base URL.
type chatClient struct {
	cfg    Config
	create completionCreator
	logger *zap.Logger
}

func newChatClient(cfg Config, logger *zap.Logger) (*chatClient, error) {
	if strings.EqualFold(cfg.Provider, ProviderOpenAI) {
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, defaultOpenAIBaseURL)
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)
	} else {
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, defaultDeepSeekBaseURL)
		cfg.Model = firstNonEmpty(cfg.Model, defaultDeepSeekModel)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("summary: api key is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
	)
	return &chatClient{
		cfg: cfg,
		create: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			return client.Chat.Completions.New(ctx, params)
		},
		logger: logger.Named("summary"),
	}, nil
}

// Summarize sends the system prompt and the truncated article text.
func (c *chatClient) Summarize(ctx context.Context, text string) (string, error) {
	input, err := prepareInput(text, c.cfg.MaxInputChars)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.cfg.SystemPrompt),
			openai.UserMessage(input),
		},
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	resp, err := c.create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completions returned no choices")
	}
	digest := strings.TrimSpace(resp.Choices[0].Message.Content)
	if digest == "" {
		return "", errors.New("chat completions returned an empty message")
	}
	c.logger.Debug("summary generated",
		zap.String("model", c.cfg.Model),
		zap.Int("input_chars", len([]rune(input))),
	)
	return digest, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
