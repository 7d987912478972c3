package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTitleBodyAndLinks(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>ignored</title></head><body>
<h1 id="firstHeading"> Гарри Поттер </h1>
<h1>Second heading</h1>
<div id="bodyContent">
  <style>.x{color:red}</style>
  <p>Серия   романов
  о волшебнике.</p>
  <a href="/wiki/Hogwarts">Hogwarts</a>
  <a href="/wiki/Hogwarts#Houses">Houses</a>
  <a href="/wiki/File:Cover.jpg">cover</a>
  <a href="/wiki/Special%3ARandom">random</a>
  <a href="#cite_note-1">[1]</a>
  <a href="//commons.wikimedia.org/wiki/Main">commons</a>
  <a href="https://example.org/wiki/External">external</a>
  <a href="/w/index.php?title=Edit">edit</a>
  <a href="/wiki/J._K._Rowling">Rowling</a>
  <a>no href</a>
</div>
<a href="/wiki/Outside_Content">footer</a>
</body></html>`

	content := NewExtractor(ExtractorConfig{}).Extract([]byte(html))

	require.Equal(t, "Гарри Поттер", content.Title)
	require.True(t, content.HasTitle())
	require.True(t, strings.HasPrefix(content.Body, "Серия романов о волшебнике."))
	require.NotContains(t, content.Body, "color:red")
	require.Equal(t, []CanonicalKey{"Hogwarts", "J._K._Rowling"}, content.Links)
}

func TestExtractMissingContainer(t *testing.T) {
	t.Parallel()

	html := `<html><body><h1>Stub</h1><p>text outside</p><a href="/wiki/Elsewhere">x</a></body></html>`
	content := NewExtractor(ExtractorConfig{}).Extract([]byte(html))

	require.Equal(t, "Stub", content.Title)
	require.Empty(t, content.Body)
	require.Equal(t, []CanonicalKey{"Elsewhere"}, content.Links)
}

func TestExtractMissingTitle(t *testing.T) {
	t.Parallel()

	content := NewExtractor(ExtractorConfig{}).Extract([]byte(`<div id="bodyContent">body</div>`))
	require.False(t, content.HasTitle())
	require.Equal(t, "body", content.Body)
}

func TestExtractTruncatesByRunes(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("ж", 50)
	html := `<h1>T</h1><div id="bodyContent">` + body + `</div>`
	content := NewExtractor(ExtractorConfig{MaxBodyChars: 10}).Extract([]byte(html))

	require.Equal(t, strings.Repeat("ж", 10), content.Body)
}

func TestExtractCustomSelector(t *testing.T) {
	t.Parallel()

	html := `<h1>T</h1><main class="article"><a href="/wiki/A">a</a>main text</main><a href="/wiki/B">b</a>`
	content := NewExtractor(ExtractorConfig{ContentSelector: "main.article"}).Extract([]byte(html))

	require.Equal(t, "amain text", content.Body)
	require.Equal(t, []CanonicalKey{"A"}, content.Links)
}

func TestExtractGarbage(t *testing.T) {
	t.Parallel()

	content := NewExtractor(ExtractorConfig{}).Extract([]byte{0xff, 0xfe, '<', '<'})
	require.Empty(t, content.Links)
	require.Empty(t, content.Body)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", truncateRunes("abc", 5))
	require.Equal(t, "ab", truncateRunes("abc", 2))
	require.Equal(t, "при", truncateRunes("привет", 3))
	require.Equal(t, "abc", truncateRunes("abc", 0))
}
