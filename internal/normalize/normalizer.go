// Package normalize converts raw fetched items into canonical article
// drafts: sanitized HTML, detected language, slug and dedup fingerprint.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"newsdesk/internal/domain"
)

// untitledFallback replaces empty titles so every draft is renderable.
const untitledFallback = "(untitled)"

var persianScript = regexp.MustCompile(`[\x{0600}-\x{06FF}]`)

// Normalizer builds canonical article drafts out of raw items.
type Normalizer struct {
	policy *bluemonday.Policy
}

// New constructs a Normalizer with the content sanitization policy:
// structural tags, images with src/alt/dimensions, and links with
// href/rel/target. Scripts, inline styles and arbitrary tags are dropped.
func New() *Normalizer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("p", "br", "ul", "ol", "li", "blockquote", "pre", "code",
		"h2", "h3", "h4", "strong", "em", "b", "i", "figure", "figcaption")
	policy.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	policy.AllowElements("img")
	policy.AllowAttrs("href", "rel", "target").OnElements("a")
	policy.RequireNoFollowOnLinks(false)
	policy.AllowURLSchemes("http", "https")
	return &Normalizer{policy: policy}
}

// Normalize converts one raw item plus its owning source's hints into an
// article draft. The draft carries text only on its source-language side;
// translation states start as "source".
func (n *Normalizer) Normalize(item domain.RawItem, src domain.Source) domain.Article {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = untitledFallback
	}

	published := time.Now()
	if item.PublishedAt != nil {
		published = *item.PublishedAt
	}

	lang := item.Language
	if lang == "" {
		lang = DetectLanguage(item.Title+" "+item.Summary, src.Language)
	}

	// Prefer full content over the summary.
	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Summary
	}
	body = n.SanitizeHTML(body)

	excerpt := strings.TrimSpace(StripHTML(item.Summary))

	draft := domain.Article{
		SourceID:    src.ID,
		Canonical:   item.URL,
		Image:       item.Image,
		Author:      item.Author,
		Language:    lang,
		Status:      domain.StatusDraft,
		Fingerprint: Fingerprint(item.URL, title),
		Translation: domain.TranslationState{
			Title:   domain.TranslationField{Status: domain.TranslationSource},
			Excerpt: domain.TranslationField{Status: domain.TranslationSource},
			Content: domain.TranslationField{Status: domain.TranslationSource},
		},
		PublishedAt: &published,
	}
	if src.Trusted {
		draft.Status = domain.StatusReviewed
	}

	if lang == domain.LangFA {
		draft.Title.FA = title
		draft.Excerpt.FA = excerpt
		draft.Content.FA = body
	} else {
		draft.Title.EN = title
		draft.Excerpt.EN = excerpt
		draft.Content.EN = body
	}

	draft.Slug = SlugBase(title, published)
	return draft
}

// SanitizeHTML applies the allow-list policy.
func (n *Normalizer) SanitizeHTML(html string) string {
	return strings.TrimSpace(n.policy.Sanitize(html))
}

// DetectLanguage guesses fa/en by Persian-script presence, falling back to
// the source's configured language.
func DetectLanguage(text string, fallback domain.Language) domain.Language {
	if persianScript.MatchString(text) {
		return domain.LangFA
	}
	if strings.TrimSpace(text) != "" {
		return domain.LangEN
	}
	if fallback != "" {
		return fallback
	}
	return domain.LangEN
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)
var spacePattern = regexp.MustCompile(`\s+`)
var danglingPunct = regexp.MustCompile(`\s+([.,:;!?؟…])`)

// StripHTML removes markup and collapses whitespace. Tags are replaced by
// spaces so adjacent words never merge; punctuation left dangling by an
// inline tag is reattached to the preceding word.
func StripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(danglingPunct.ReplaceAllString(text, "$1"))
}
