package crawler

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DefaultContentSelector matches the main-content container of article pages.
const DefaultContentSelector = "#bodyContent"

// Extractor turns raw article markup into Content.
type Extractor struct {
	contentSelector string
	maxBodyChars    int
}

// ExtractorConfig tunes the extractor. Zero values fall back to defaults.
type ExtractorConfig struct {
	ContentSelector string
	MaxBodyChars    int
}

// NewExtractor builds an Extractor.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.ContentSelector == "" {
		cfg.ContentSelector = DefaultContentSelector
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = DefaultMaxBodyChars
	}
	return &Extractor{
		contentSelector: cfg.ContentSelector,
		maxBodyChars:    cfg.MaxBodyChars,
	}
}

// Extract parses raw markup. It never fails: markup that cannot be read
// yields an empty Content.
func (e *Extractor) Extract(raw []byte) Content {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Content{}
	}

	var content Content
	content.Title = strings.TrimSpace(doc.Find("h1").First().Text())

	scope := doc.Find(e.contentSelector).First()
	if scope.Length() > 0 {
		scope.Find("script, style, noscript").Remove()
		content.Body = truncateRunes(collapseWhitespace(scope.Text()), e.maxBodyChars)
	} else {
		scope = doc.Selection
	}
	content.Links = collectLinks(scope)
	return content
}

func collectLinks(scope *goquery.Selection) []CanonicalKey {
	seen := make(map[CanonicalKey]struct{})
	var links []CanonicalKey
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		key, ok := internalLink(href)
		if !ok {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	})
	return links
}

// internalLink accepts site-relative article links and rejects external,
// protocol-relative, fragment-only and namespaced references.
func internalLink(href string) (CanonicalKey, bool) {
	href = strings.TrimSpace(href)
	if !strings.HasPrefix(href, wikiPathMarker) {
		return "", false
	}
	if strings.Contains(href, "//") {
		return "", false
	}
	key := Normalize(href)
	if !key.Valid() {
		return "", false
	}
	if strings.Contains(key.Title(), ":") {
		return "", false
	}
	return key, true
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
