// Package summary generates short article digests with an LLM provider.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// ProviderDeepSeek uses the DeepSeek OpenAI-compatible endpoint.
	ProviderDeepSeek = "deepseek"
	// ProviderOpenAI uses any OpenAI-compatible chat completions endpoint.
	ProviderOpenAI = "openai"
	// ProviderAnthropic uses the Anthropic Messages API.
	ProviderAnthropic = "anthropic"

	// DefaultSystemPrompt asks for a digest in Russian, matching the default
	// ru.wikipedia.org source.
	DefaultSystemPrompt = "Напиши краткое резюме статьи."
	// DefaultMaxInputChars bounds the article text sent to the model.
	DefaultMaxInputChars = 8000
)

// ErrEmptyInput is returned when there is no text to summarize.
var ErrEmptyInput = errors.New("summary: empty input")

// Summarizer produces a digest of article text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config selects and tunes the provider.
type Config struct {
	Enabled       bool
	Provider      string
	BaseURL       string
	APIKey        string
	Model         string
	SystemPrompt  string
	MaxInputChars int
	MaxTokens     int
	Timeout       time.Duration
}

// New builds the configured Summarizer. A disabled config yields Noop.
func New(cfg Config, logger *zap.Logger) (Summarizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderDeepSeek, ProviderOpenAI:
		return newChatClient(cfg, logger)
	case ProviderAnthropic:
		return newAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("summary: unsupported provider %q", cfg.Provider)
	}
}

// Noop never produces a summary.
type Noop struct{}

// Summarize returns an empty digest.
func (Noop) Summarize(context.Context, string) (string, error) {
	return "", nil
}

// prepareInput trims text and keeps at most limit runes.
func prepareInput(text string, limit int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	if utf8.RuneCountInString(text) <= limit {
		return text, nil
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i], nil
		}
		n++
	}
	return text, nil
}
