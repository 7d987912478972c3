package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the raw markup of an article by canonical key.
type Fetcher interface {
	Fetch(ctx context.Context, key CanonicalKey) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key CanonicalKey) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, key CanonicalKey) ([]byte, error) {
	return f(ctx, key)
}

// ArticleSink persists crawled articles. Upsert must be idempotent per key:
// when the key already exists the stored record is returned unchanged.
type ArticleSink interface {
	Upsert(ctx context.Context, draft ArticleDraft) (StoredArticle, error)
}

// ArticleStore is the read/write repository behind the article service.
type ArticleStore interface {
	ArticleSink
	GetByKey(ctx context.Context, key CanonicalKey) (StoredArticle, error)
	ListChildren(ctx context.Context, parentID string) ([]StoredArticle, error)
	SaveSummary(ctx context.Context, articleID string, text string) (Summary, error)
	GetSummary(ctx context.Context, articleID string) (Summary, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes crawl events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for object naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
