package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

const maxSlugTitleLen = 80

// SlugBase derives the base slug from a title and its publication date.
// Persian letters are kept as-is (URL encoding is the renderer's concern).
// Collisions are resolved by the store via numeric suffixing.
func SlugBase(title string, date time.Time) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if runes := []rune(slug); len(runes) > maxSlugTitleLen {
		slug = strings.Trim(string(runes[:maxSlugTitleLen]), "-")
	}
	if slug == "" {
		slug = "article"
	}
	return slug + "-" + date.Format("20060102")
}

// Fingerprint is the deterministic dedup key for a candidate story,
// derived from its link and title. Stable across process restarts.
func Fingerprint(link, title string) string {
	sum := sha256.Sum256([]byte(link + "|" + title))
	return hex.EncodeToString(sum[:])
}
