package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/wikicrawler/internal/metrics"
)

const (
	pruneDepth     = "depth"
	pruneDuplicate = "duplicate"
	pruneInvalid   = "invalid"
)

// Coordinator drives recursive crawls. It holds collaborators only; every
// call to Crawl gets its own visited registry and fetch pool.
type Coordinator struct {
	fetcher   Fetcher
	sink      ArticleSink
	extractor *Extractor
	logger    *zap.Logger
}

// NewCoordinator wires a Coordinator. A nil extractor uses defaults.
func NewCoordinator(fetcher Fetcher, sink ArticleSink, extractor *Extractor, logger *zap.Logger) (*Coordinator, error) {
	if fetcher == nil {
		return nil, errors.New("crawler: fetcher is required")
	}
	if sink == nil {
		return nil, errors.New("crawler: article sink is required")
	}
	if extractor == nil {
		extractor = NewExtractor(ExtractorConfig{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		fetcher:   fetcher,
		sink:      sink,
		extractor: extractor,
		logger:    logger.Named("crawler"),
	}, nil
}

// crawlRun is the state shared by every branch of one top-level crawl.
type crawlRun struct {
	cfg     Config
	visited *VisitedRegistry
	pool    *semaphore.Weighted

	fetched         atomic.Int64
	failed          atomic.Int64
	persisted       atomic.Int64
	persistFailed   atomic.Int64
	prunedDuplicate atomic.Int64
	prunedDepth     atomic.Int64
}

func (r *crawlRun) stats() Stats {
	return Stats{
		Fetched:         r.fetched.Load(),
		Failed:          r.failed.Load(),
		Persisted:       r.persisted.Load(),
		PersistFailed:   r.persistFailed.Load(),
		PrunedDuplicate: r.prunedDuplicate.Load(),
		PrunedDepth:     r.prunedDepth.Load(),
	}
}

// Crawl fetches seed and recursively expands its links within cfg's bounds.
// Only an unusable seed, an invalid config or cancellation fail the call;
// individual fetch failures prune their subtree and show up in Stats.
func (c *Coordinator) Crawl(ctx context.Context, seed string, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	key := Normalize(seed)
	if !key.Valid() {
		metrics.ObserveCrawl("invalid_seed", 0)
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidSeed, seed)
	}

	run := &crawlRun{
		cfg:     cfg,
		visited: NewVisitedRegistry(),
		pool:    semaphore.NewWeighted(int64(cfg.MaxConcurrentFetches)),
	}
	start := time.Now()
	root := c.crawl(ctx, run, key, 0, nil)
	result := Result{Root: root, Stats: run.stats()}

	logger := c.logger.With(
		zap.String("seed", key.String()),
		zap.Int("nodes", root.Count()),
		zap.Int64("fetched", result.Stats.Fetched),
		zap.Int64("failed", result.Stats.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err := ctx.Err(); err != nil {
		metrics.ObserveCrawl("canceled", root.Count())
		logger.Warn("crawl canceled", zap.Error(err))
		return result, fmt.Errorf("crawl %s: %w", key, err)
	}
	if root == nil {
		metrics.ObserveCrawl("seed_failed", 0)
		logger.Warn("seed article could not be crawled")
		return result, nil
	}
	metrics.ObserveCrawl("completed", root.Count())
	logger.Info("crawl completed")
	return result, nil
}

// crawl handles one reference. It returns nil when the branch is pruned or
// the article cannot be fetched or stored.
func (c *Coordinator) crawl(ctx context.Context, run *crawlRun, key CanonicalKey, depth int, parent *ArticleNode) *ArticleNode {
	if depth > run.cfg.MaxDepth {
		run.prunedDepth.Add(1)
		metrics.ObservePrune(pruneDepth)
		return nil
	}
	if !key.Valid() {
		metrics.ObservePrune(pruneInvalid)
		return nil
	}
	if !run.visited.MarkIfNew(key) {
		run.prunedDuplicate.Add(1)
		metrics.ObservePrune(pruneDuplicate)
		return nil
	}

	raw, err := c.fetch(ctx, run, key)
	if err != nil {
		run.failed.Add(1)
		if ctx.Err() == nil {
			c.logger.Warn("fetch failed", zap.String("key", key.String()), zap.Int("depth", depth), zap.Error(err))
		}
		return nil
	}
	run.fetched.Add(1)

	content := c.extractor.Extract(raw)
	node := &ArticleNode{
		Key:   key,
		Title: content.Title,
		Body:  content.Body,
		Depth: depth,
	}
	if !content.HasTitle() {
		node.Title = key.DisplayTitle()
	}
	draft := ArticleDraft{
		Key:   key,
		Title: node.Title,
		Body:  node.Body,
		Depth: depth,
	}
	if parent != nil {
		node.ParentKey = parent.Key
		draft.ParentKey = parent.Key
		draft.ParentID = parent.ID
	}

	stored, err := c.sink.Upsert(ctx, draft)
	if err != nil {
		run.persistFailed.Add(1)
		metrics.ObservePersist("failed")
		c.logger.Error("persist article failed", zap.String("key", key.String()), zap.Error(err))
		return nil
	}
	run.persisted.Add(1)
	metrics.ObservePersist("stored")
	node.ID = stored.ID

	if depth == run.cfg.MaxDepth {
		return node
	}

	links := content.Links
	if len(links) > run.cfg.MaxFanout {
		links = links[:run.cfg.MaxFanout]
	}
	if len(links) == 0 {
		return node
	}

	children := make([]*ArticleNode, len(links))
	var wg sync.WaitGroup
	for i, link := range links {
		wg.Add(1)
		go func(i int, link CanonicalKey) {
			defer wg.Done()
			children[i] = c.crawl(ctx, run, link, depth+1, node)
		}(i, link)
	}
	wg.Wait()

	for _, child := range children {
		if child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// fetch holds a pool slot only for the duration of the network call.
func (c *Coordinator) fetch(ctx context.Context, run *crawlRun, key CanonicalKey) ([]byte, error) {
	if err := run.pool.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	metrics.IncInflightFetches()
	defer func() {
		metrics.DecInflightFetches()
		run.pool.Release(1)
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, run.cfg.FetchTimeout)
	defer cancel()
	raw, err := c.fetcher.Fetch(fetchCtx, key)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
