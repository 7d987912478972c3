package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// articlePage renders a minimal article with the given outbound links.
func articlePage(title string, links ...string) []byte {
	var b strings.Builder
	b.WriteString("<html><body><h1>")
	b.WriteString(title)
	b.WriteString("</h1><div id=\"bodyContent\"><p>About ")
	b.WriteString(title)
	b.WriteString(".</p>")
	for _, link := range links {
		fmt.Fprintf(&b, "<a href=\"/wiki/%s\">%s</a>", link, link)
	}
	b.WriteString("</div></body></html>")
	return []byte(b.String())
}

// mapFetcher serves pages from memory and counts fetches per key.
type mapFetcher struct {
	pages map[CanonicalKey][]byte
	fail  map[CanonicalKey]error
	delay time.Duration

	mu       sync.Mutex
	calls    map[CanonicalKey]int
	inflight atomic.Int64
	peak     atomic.Int64
}

func newMapFetcher() *mapFetcher {
	return &mapFetcher{
		pages: make(map[CanonicalKey][]byte),
		fail:  make(map[CanonicalKey]error),
		calls: make(map[CanonicalKey]int),
	}
}

func (f *mapFetcher) add(title string, links ...string) {
	f.pages[CanonicalKey(title)] = articlePage(title, links...)
}

func (f *mapFetcher) Fetch(ctx context.Context, key CanonicalKey) ([]byte, error) {
	current := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if current <= peak || f.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &FetchError{Key: key, Err: ctx.Err()}
		}
	}
	if err, ok := f.fail[key]; ok {
		return nil, err
	}
	page, ok := f.pages[key]
	if !ok {
		return nil, &FetchError{Key: key, StatusCode: 404}
	}
	return page, nil
}

func (f *mapFetcher) callCount(key CanonicalKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *mapFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// recordingSink stores drafts keyed by canonical key.
type recordingSink struct {
	mu     sync.Mutex
	nextID int
	byKey  map[CanonicalKey]StoredArticle
	drafts []ArticleDraft
}

func newRecordingSink() *recordingSink {
	return &recordingSink{byKey: make(map[CanonicalKey]StoredArticle)}
}

func (s *recordingSink) Upsert(_ context.Context, draft ArticleDraft) (StoredArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, draft)
	if existing, ok := s.byKey[draft.Key]; ok {
		return existing, nil
	}
	s.nextID++
	stored := StoredArticle{
		ID:       fmt.Sprintf("id-%d", s.nextID),
		Key:      draft.Key,
		Title:    draft.Title,
		Body:     draft.Body,
		Depth:    draft.Depth,
		ParentID: draft.ParentID,
	}
	s.byKey[draft.Key] = stored
	return stored, nil
}

func (s *recordingSink) get(key CanonicalKey) (StoredArticle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byKey[key]
	return stored, ok
}

func childKeys(node *ArticleNode) []CanonicalKey {
	keys := make([]CanonicalKey, 0, len(node.Children))
	for _, child := range node.Children {
		keys = append(keys, child.Key)
	}
	return keys
}
