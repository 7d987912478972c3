// Package article implements the parse-and-save flow exposed by the API and
// the CLI: crawl a seed, summarize the root article, and announce the result.
package article

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/clock/system"
	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/metrics"
	"github.com/JakeFAU/wikicrawler/internal/summary"
)

// EventParsed is the event type published after a successful parse.
const EventParsed = "article.parsed"

// Crawler runs one bounded crawl.
type Crawler interface {
	Crawl(ctx context.Context, seed string, cfg crawler.Config) (crawler.Result, error)
}

// Overrides adjusts the default crawl bounds for a single request.
type Overrides struct {
	MaxDepth  *int
	MaxFanout *int
}

// ParseResult describes a completed parse.
type ParseResult struct {
	Article crawler.StoredArticle
	Summary *crawler.Summary
	Tree    *crawler.ArticleNode
	Nodes   int
	Stats   crawler.Stats
}

// ParsedEvent is published to the events topic after a parse.
type ParsedEvent struct {
	Type       string        `json:"type"`
	ArticleID  string        `json:"article_id"`
	Key        string        `json:"key"`
	Title      string        `json:"title"`
	Nodes      int           `json:"nodes"`
	Summarized bool          `json:"summarized"`
	Stats      crawler.Stats `json:"stats"`
	ParsedAt   time.Time     `json:"parsed_at"`
}

// Attributes implements the Pub/Sub attribute hook.
func (e ParsedEvent) Attributes() map[string]string {
	return map[string]string{
		"event_type": e.Type,
		"article_id": e.ArticleID,
	}
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Summarizer summary.Summarizer
	Publisher  crawler.Publisher
	Topic      string
	Clock      crawler.Clock
	Logger     *zap.Logger
}

// Service orchestrates crawling, summarizing and publishing.
type Service struct {
	crawler    Crawler
	store      crawler.ArticleStore
	summarizer summary.Summarizer
	publisher  crawler.Publisher
	topic      string
	defaults   crawler.Config
	clock      crawler.Clock
	logger     *zap.Logger
}

// NewService validates defaults and wires the collaborators.
func NewService(c Crawler, store crawler.ArticleStore, defaults crawler.Config, opts Options) (*Service, error) {
	if c == nil {
		return nil, errors.New("article: crawler is required")
	}
	if store == nil {
		return nil, errors.New("article: store is required")
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	if opts.Summarizer == nil {
		opts.Summarizer = summary.Noop{}
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		crawler:    c,
		store:      store,
		summarizer: opts.Summarizer,
		publisher:  opts.Publisher,
		topic:      opts.Topic,
		defaults:   defaults,
		clock:      opts.Clock,
		logger:     opts.Logger.Named("article"),
	}, nil
}

// Defaults returns the crawl bounds used when no override is given.
func (s *Service) Defaults() crawler.Config {
	return s.defaults
}

// Parse crawls ref, stores the tree, and summarizes the root article.
// It returns crawler.ErrNotFound when the seed itself could not be fetched.
func (s *Service) Parse(ctx context.Context, ref string, overrides Overrides) (ParseResult, error) {
	cfg := s.defaults
	if overrides.MaxDepth != nil {
		cfg.MaxDepth = *overrides.MaxDepth
	}
	if overrides.MaxFanout != nil {
		cfg.MaxFanout = *overrides.MaxFanout
	}

	res, err := s.crawler.Crawl(ctx, ref, cfg)
	if err != nil {
		return ParseResult{}, err
	}
	if res.Root == nil {
		return ParseResult{Stats: res.Stats}, fmt.Errorf("%w: %s", crawler.ErrNotFound, ref)
	}

	stored, err := s.store.GetByKey(ctx, res.Root.Key)
	if err != nil {
		return ParseResult{}, fmt.Errorf("load root article %s: %w", res.Root.Key, err)
	}

	out := ParseResult{
		Article: stored,
		Tree:    res.Root,
		Nodes:   res.Root.Count(),
		Stats:   res.Stats,
	}
	if sum, ok := s.summarize(ctx, stored); ok {
		out.Summary = &sum
	}
	s.publish(ctx, out)
	return out, nil
}

func (s *Service) summarize(ctx context.Context, stored crawler.StoredArticle) (crawler.Summary, bool) {
	if stored.Body == "" {
		metrics.ObserveSummary("skipped")
		return crawler.Summary{}, false
	}
	text, err := s.summarizer.Summarize(ctx, stored.Body)
	if err != nil {
		metrics.ObserveSummary("error")
		s.logger.Warn("summary generation failed", zap.String("key", stored.Key.String()), zap.Error(err))
		return crawler.Summary{}, false
	}
	if text == "" {
		metrics.ObserveSummary("skipped")
		return crawler.Summary{}, false
	}
	saved, err := s.store.SaveSummary(ctx, stored.ID, text)
	if err != nil {
		metrics.ObserveSummary("error")
		s.logger.Warn("summary save failed", zap.String("article_id", stored.ID), zap.Error(err))
		return crawler.Summary{}, false
	}
	metrics.ObserveSummary("success")
	return saved, true
}

func (s *Service) publish(ctx context.Context, res ParseResult) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	event := ParsedEvent{
		Type:       EventParsed,
		ArticleID:  res.Article.ID,
		Key:        res.Article.Key.String(),
		Title:      res.Article.Title,
		Nodes:      res.Nodes,
		Summarized: res.Summary != nil,
		Stats:      res.Stats,
		ParsedAt:   s.clock.Now(),
	}
	if _, err := s.publisher.Publish(ctx, s.topic, event); err != nil {
		s.logger.Warn("publish parsed event failed", zap.String("topic", s.topic), zap.Error(err))
	}
}

// Summary returns the stored article for ref and its digest.
func (s *Service) Summary(ctx context.Context, ref string) (crawler.StoredArticle, crawler.Summary, error) {
	key := crawler.Normalize(ref)
	if !key.Valid() {
		return crawler.StoredArticle{}, crawler.Summary{}, fmt.Errorf("%w: %q", crawler.ErrInvalidSeed, ref)
	}
	stored, err := s.store.GetByKey(ctx, key)
	if err != nil {
		return crawler.StoredArticle{}, crawler.Summary{}, err
	}
	sum, err := s.store.GetSummary(ctx, stored.ID)
	if err != nil {
		return stored, crawler.Summary{}, err
	}
	return stored, sum, nil
}
