// Package archive wraps a crawler.Fetcher and snapshots every fetched page
// into a blob store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

const contentTypeHTML = "text/html; charset=utf-8"

// Fetcher stores the raw markup returned by the wrapped fetcher. Archive
// failures are logged and never fail the fetch.
type Fetcher struct {
	next   crawler.Fetcher
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	clock  crawler.Clock
	prefix string
	logger *zap.Logger
}

// Config tunes object naming.
type Config struct {
	Prefix string
}

// New wraps next.
func New(
	next crawler.Fetcher,
	blobs crawler.BlobStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Fetcher, error) {
	if next == nil || blobs == nil || hasher == nil || clock == nil {
		return nil, fmt.Errorf("archive fetcher: fetcher, blob store, hasher and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		next:   next,
		blobs:  blobs,
		hasher: hasher,
		clock:  clock,
		prefix: cfg.Prefix,
		logger: logger.Named("archive"),
	}, nil
}

// Fetch delegates to the wrapped fetcher and archives successful bodies.
func (f *Fetcher) Fetch(ctx context.Context, key crawler.CanonicalKey) ([]byte, error) {
	body, err := f.next.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	uri, archiveErr := f.store(ctx, key, body)
	if archiveErr != nil {
		f.logger.Warn("archive page failed", zap.String("key", key.String()), zap.Error(archiveErr))
	} else {
		f.logger.Debug("archived page", zap.String("key", key.String()), zap.String("uri", uri))
	}
	return body, nil
}

// ObjectPath names the archive object for key: prefix/YYYY/MM/DD/<digest>.html.
func (f *Fetcher) ObjectPath(key crawler.CanonicalKey) (string, error) {
	digest, err := f.hasher.Hash([]byte(key))
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	day := f.clock.Now().UTC().Format("2006/01/02")
	return path.Join(f.prefix, day, digest+".html"), nil
}

func (f *Fetcher) store(ctx context.Context, key crawler.CanonicalKey, body []byte) (string, error) {
	objectPath, err := f.ObjectPath(key)
	if err != nil {
		return "", err
	}
	uri, err := f.blobs.PutObject(ctx, objectPath, contentTypeHTML, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectPath, err)
	}
	return uri, nil
}
