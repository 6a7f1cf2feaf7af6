package normalize

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
)

var stripTags = bluemonday.StrictPolicy()

// CleanText strips markup, unescapes HTML entities, and collapses
// whitespace. Safe to call on plain text.
func CleanText(s string) string {
	s = stripTags.Sanitize(s)
	s = html.UnescapeString(s)
	return collapseWhitespace(s)
}

// NormalizeForHash canonicalizes text for fingerprinting: lowercase,
// non-word characters removed, whitespace collapsed. Defined over code
// points so differently encoded sources hash identically. Idempotent:
// NormalizeForHash(NormalizeForHash(x)) == NormalizeForHash(x).
func NormalizeForHash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// everything else (punctuation, symbols) is dropped
	}
	return collapseWhitespace(b.String())
}

// ContentHash computes the exact-duplicate fingerprint over the normalized
// title and content. algo selects the digest: sha256 (default), md5, sha1.
func ContentHash(title, content, algo string) (string, error) {
	var h hash.Hash
	switch algo {
	case "", "sha256":
		h = sha256.New()
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algo)
	}
	h.Write([]byte(NormalizeForHash(title + " " + content)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParsePublishedAt resolves an item's publication time. A pre-parsed time
// wins; otherwise the raw string is parsed leniently; on failure the fetch
// time is used.
func ParsePublishedAt(parsed *time.Time, raw string, fetchedAt time.Time) time.Time {
	if parsed != nil && !parsed.IsZero() {
		return *parsed
	}
	if raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t
		}
	}
	return fetchedAt
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
