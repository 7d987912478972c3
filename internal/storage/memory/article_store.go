package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

// ArticleStore is an in-memory crawler.ArticleStore for development/testing.
type ArticleStore struct {
	mu        sync.RWMutex
	ids       crawler.IDGenerator
	clock     crawler.Clock
	byKey     map[crawler.CanonicalKey]crawler.StoredArticle
	byID      map[string]crawler.CanonicalKey
	summaries map[string]crawler.Summary
}

// NewArticleStore constructs an ArticleStore.
func NewArticleStore(ids crawler.IDGenerator, clock crawler.Clock) *ArticleStore {
	return &ArticleStore{
		ids:       ids,
		clock:     clock,
		byKey:     make(map[crawler.CanonicalKey]crawler.StoredArticle),
		byID:      make(map[string]crawler.CanonicalKey),
		summaries: make(map[string]crawler.Summary),
	}
}

// Upsert stores draft unless its key already exists, in which case the
// existing record is returned unchanged.
func (s *ArticleStore) Upsert(_ context.Context, draft crawler.ArticleDraft) (crawler.StoredArticle, error) {
	if !draft.Key.Valid() {
		return crawler.StoredArticle{}, fmt.Errorf("upsert article: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byKey[draft.Key]; ok {
		return existing, nil
	}
	if draft.ParentID != "" {
		if _, ok := s.byID[draft.ParentID]; !ok {
			return crawler.StoredArticle{}, fmt.Errorf("upsert article %s: unknown parent %s", draft.Key, draft.ParentID)
		}
	}
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.StoredArticle{}, fmt.Errorf("upsert article %s: %w", draft.Key, err)
	}
	stored := crawler.StoredArticle{
		ID:        id,
		Key:       draft.Key,
		Title:     draft.Title,
		Body:      draft.Body,
		Depth:     draft.Depth,
		ParentID:  draft.ParentID,
		CreatedAt: s.clock.Now(),
	}
	s.byKey[draft.Key] = stored
	s.byID[id] = draft.Key
	return stored, nil
}

// GetByKey fetches an article by canonical key.
func (s *ArticleStore) GetByKey(_ context.Context, key crawler.CanonicalKey) (crawler.StoredArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.byKey[key]
	if !ok {
		return crawler.StoredArticle{}, crawler.ErrNotFound
	}
	return article, nil
}

// ListChildren returns the articles discovered from parentID ordered by key.
func (s *ArticleStore) ListChildren(_ context.Context, parentID string) ([]crawler.StoredArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var children []crawler.StoredArticle
	for _, article := range s.byKey {
		if article.ParentID == parentID {
			children = append(children, article)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Key < children[j].Key
	})
	return children, nil
}

// SaveSummary creates or replaces the summary for articleID.
func (s *ArticleStore) SaveSummary(_ context.Context, articleID string, text string) (crawler.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return crawler.Summary{}, fmt.Errorf("save summary: empty text")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[articleID]; !ok {
		return crawler.Summary{}, crawler.ErrNotFound
	}
	summary := crawler.Summary{ArticleID: articleID, Text: text, CreatedAt: s.clock.Now()}
	s.summaries[articleID] = summary
	return summary, nil
}

// GetSummary fetches the summary for articleID.
func (s *ArticleStore) GetSummary(_ context.Context, articleID string) (crawler.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[articleID]
	if !ok {
		return crawler.Summary{}, crawler.ErrNotFound
	}
	return summary, nil
}

// Len returns the number of stored articles.
func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}
