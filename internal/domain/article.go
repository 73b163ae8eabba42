package domain

import "time"

// Language identifies which side of a bilingual field is the source of truth.
type Language string

const (
	LangFA Language = "fa"
	LangEN Language = "en"
)

// ArticleStatus enumerates the editorial lifecycle.
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "DRAFT"
	StatusReviewed  ArticleStatus = "REVIEWED"
	StatusScheduled ArticleStatus = "SCHEDULED"
	StatusPublished ArticleStatus = "PUBLISHED"
	StatusRejected  ArticleStatus = "REJECTED"
)

// TranslationFieldStatus records how one bilingual field got its content.
type TranslationFieldStatus string

const (
	TranslationSource     TranslationFieldStatus = "source"
	TranslationTranslated TranslationFieldStatus = "translated"
	TranslationFallback   TranslationFieldStatus = "fallback"
	TranslationManual     TranslationFieldStatus = "manual"
)

// TranslationField tracks per-field translation state so a partially
// translated article is representable and resumable.
type TranslationField struct {
	Status      TranslationFieldStatus `json:"status"`
	Provider    string                 `json:"provider,omitempty"`
	Error       string                 `json:"error,omitempty"`
	AttemptedAt *time.Time             `json:"attempted_at,omitempty"`
}

// TranslationState covers the three translatable fields of an article.
type TranslationState struct {
	Title   TranslationField `json:"title"`
	Excerpt TranslationField `json:"excerpt"`
	Content TranslationField `json:"content"`
}

// LocalizedText holds both language renditions of a text field. Exactly one
// side is authoritative (per Article.Language); the other may be a
// translation or a fallback copy.
type LocalizedText struct {
	FA string `json:"fa"`
	EN string `json:"en"`
}

// In returns the rendition for lang.
func (l LocalizedText) In(lang Language) string {
	if lang == LangFA {
		return l.FA
	}
	return l.EN
}

// Other returns the rendition opposite to lang.
func (l LocalizedText) Other(lang Language) string {
	if lang == LangFA {
		return l.EN
	}
	return l.FA
}

// TopicScore is one predicted topic label with its score in [0,1].
type TopicScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Article is the durable content entity produced by ingestion and moved
// through the editorial state machine. The slug is unique and immutable once
// assigned; articles are never hard-deleted, visibility is status-driven.
type Article struct {
	ID           int64
	SourceID     int64
	Slug         string
	Canonical    string
	Image        string
	Author       string
	Language     Language
	Status       ArticleStatus
	Title        LocalizedText
	Excerpt      LocalizedText
	Summary      LocalizedText
	Content      LocalizedText
	Fingerprint  string
	Translation  TranslationState
	Categories   []string
	Tags         []string
	Topics       []TopicScore
	PublishedAt  *time.Time
	ScheduledFor *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RawItem is one candidate story as produced by the fetcher. It is
// ephemeral: consumed immediately by the normalizer, never persisted.
type RawItem struct {
	Title       string
	URL         string
	Summary     string
	Content     string
	Image       string
	Author      string
	Language    Language
	PublishedAt *time.Time
}
