package crawler

import (
	"net/url"
	"strings"
	"unicode"
)

const wikiPathMarker = "/wiki/"

// Normalize reduces any article reference (absolute URL, site-relative path
// or bare title) to its canonical key. It drops the fragment and query,
// strips everything up to the last /wiki/ marker, percent-decodes the rest
// and folds spaces to underscores. The characters %, ? and # stay escaped so
// that normalizing a key again returns it unchanged. Degenerate input yields
// the empty key.
func Normalize(reference string) CanonicalKey {
	ref := strings.TrimSpace(reference)
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, wikiPathMarker); i >= 0 {
		ref = ref[i+len(wikiPathMarker):]
	} else {
		ref = stripOrigin(ref)
	}
	ref = strings.Trim(ref, "/")
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}
	ref = strings.Trim(strings.TrimSpace(ref), "/")
	ref = strings.ReplaceAll(ref, " ", "_")
	if ref == "" || strings.Trim(ref, "_/") == "" {
		return ""
	}
	if strings.IndexFunc(ref, unicode.IsControl) >= 0 {
		return ""
	}
	return CanonicalKey(reservedEscaper.Replace(ref))
}

var reservedEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// Title returns the fully decoded article title with underscores kept.
func (k CanonicalKey) Title() string {
	decoded, err := url.PathUnescape(string(k))
	if err != nil {
		return string(k)
	}
	return decoded
}

// EscapedPath renders the key as a URL path suffix, escaping each segment.
func (k CanonicalKey) EscapedPath() string {
	segments := strings.Split(k.Title(), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func stripOrigin(ref string) string {
	if i := strings.Index(ref, "://"); i >= 0 {
		rest := ref[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[j:]
		}
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		rest := ref[2:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[j:]
		}
		return ""
	}
	return ref
}
