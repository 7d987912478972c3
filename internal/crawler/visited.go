package crawler

import "sync"

// VisitedRegistry is the set of keys already claimed by one crawl. It only
// grows, and MarkIfNew is a single atomic test-and-insert.
type VisitedRegistry struct {
	mu   sync.Mutex
	seen map[CanonicalKey]struct{}
}

// NewVisitedRegistry returns an empty registry.
func NewVisitedRegistry() *VisitedRegistry {
	return &VisitedRegistry{seen: make(map[CanonicalKey]struct{})}
}

// MarkIfNew records key and returns true when it was not present. Invalid
// keys are never recorded.
func (r *VisitedRegistry) MarkIfNew(key CanonicalKey) bool {
	if !key.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

// Contains reports whether key has been claimed.
func (r *VisitedRegistry) Contains(key CanonicalKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[key]
	return ok
}

// Len returns the number of claimed keys.
func (r *VisitedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
