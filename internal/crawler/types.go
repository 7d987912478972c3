package crawler

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxDepth bounds recursion below the seed.
	DefaultMaxDepth = 2
	// DefaultMaxFanout caps the links expanded per article.
	DefaultMaxFanout = 10
	// DefaultMaxConcurrentFetches caps in-flight fetches across one crawl.
	DefaultMaxConcurrentFetches = 10
	// DefaultFetchTimeout bounds a single page retrieval.
	DefaultFetchTimeout = 15 * time.Second
	// DefaultMaxBodyChars truncates extracted body text.
	DefaultMaxBodyChars = 100000
)

// CanonicalKey is the normalized article identifier: the decoded path
// segment after /wiki/, without fragment or query. The empty key is invalid.
type CanonicalKey string

// Valid reports whether the key identifies an article.
func (k CanonicalKey) Valid() bool {
	return k != ""
}

// DisplayTitle renders the key the way the encyclopedia titles pages.
func (k CanonicalKey) DisplayTitle() string {
	return strings.ReplaceAll(k.Title(), "_", " ")
}

func (k CanonicalKey) String() string {
	return string(k)
}

// Config bounds a single top-level crawl. It is validated once and never
// mutated while the crawl runs.
type Config struct {
	MaxDepth             int
	MaxFanout            int
	MaxConcurrentFetches int
	FetchTimeout         time.Duration
}

// DefaultConfig returns the stock crawl bounds.
func DefaultConfig() Config {
	return Config{
		MaxDepth:             DefaultMaxDepth,
		MaxFanout:            DefaultMaxFanout,
		MaxConcurrentFetches: DefaultMaxConcurrentFetches,
		FetchTimeout:         DefaultFetchTimeout,
	}
}

// Validate checks the bounds.
func (c Config) Validate() error {
	switch {
	case c.MaxDepth < 0:
		return fmt.Errorf("%w: max depth must be >= 0, got %d", ErrInvalidConfig, c.MaxDepth)
	case c.MaxFanout < 0:
		return fmt.Errorf("%w: max fanout must be >= 0, got %d", ErrInvalidConfig, c.MaxFanout)
	case c.MaxConcurrentFetches <= 0:
		return fmt.Errorf("%w: max concurrent fetches must be > 0, got %d", ErrInvalidConfig, c.MaxConcurrentFetches)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("%w: fetch timeout must be > 0, got %s", ErrInvalidConfig, c.FetchTimeout)
	}
	return nil
}

// Content is what the extractor pulls out of one page. Title and Body are
// empty when the page lacks a heading or a main-content container.
type Content struct {
	Title string
	Body  string
	Links []CanonicalKey
}

// HasTitle reports whether the page carried a primary heading.
func (c Content) HasTitle() bool {
	return c.Title != ""
}

// ArticleNode is one successfully fetched article and the subtree crawled
// from it.
type ArticleNode struct {
	ID        string         `json:"id"`
	Key       CanonicalKey   `json:"key"`
	Title     string         `json:"title"`
	Body      string         `json:"-"`
	Depth     int            `json:"depth"`
	ParentKey CanonicalKey   `json:"parent_key,omitempty"`
	Children  []*ArticleNode `json:"children,omitempty"`
}

// ArticleDraft is the record handed to an ArticleSink.
type ArticleDraft struct {
	Key       CanonicalKey
	Title     string
	Body      string
	Depth     int
	ParentID  string
	ParentKey CanonicalKey
}

// StoredArticle is the persisted form of an article.
type StoredArticle struct {
	ID        string       `json:"id"`
	Key       CanonicalKey `json:"key"`
	Title     string       `json:"title"`
	Body      string       `json:"body,omitempty"`
	Depth     int          `json:"depth"`
	ParentID  string       `json:"parent_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Summary is a generated digest attached to a stored article.
type Summary struct {
	ArticleID string    `json:"article_id"`
	Text      string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats counts what happened during one crawl.
type Stats struct {
	Fetched         int64 `json:"fetched"`
	Failed          int64 `json:"failed"`
	Persisted       int64 `json:"persisted"`
	PersistFailed   int64 `json:"persist_failed"`
	PrunedDuplicate int64 `json:"pruned_duplicate"`
	PrunedDepth     int64 `json:"pruned_depth"`
}

// Result is the outcome of Coordinator.Crawl. Root is nil when the seed
// itself could not be fetched.
type Result struct {
	Root  *ArticleNode
	Stats Stats
}
