package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsdesk/internal/domain"
)

const articleColumns = `id, source_id, slug, canonical, image, author, language, status,
	title_fa, title_en, excerpt_fa, excerpt_en, summary_fa, summary_en,
	content_fa, content_en, fingerprint, translation, categories, tags, topics,
	published_at, scheduled_for, created_at, updated_at`

// InsertArticle persists a new article draft. The fingerprint unique
// constraint makes re-ingesting an identical item a no-op: the second
// insert is ignored and created=false is returned.
func (s *Store) InsertArticle(ctx context.Context, a *domain.Article) (bool, error) {
	now := nowMilli()
	translation, _ := json.Marshal(a.Translation)
	categories, _ := json.Marshal(emptyIfNil(a.Categories))
	tags, _ := json.Marshal(emptyIfNil(a.Tags))
	topics, _ := json.Marshal(a.Topics)
	if a.Topics == nil {
		topics = []byte("[]")
	}

	res, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO articles
			(source_id, slug, canonical, image, author, language, status,
			 title_fa, title_en, excerpt_fa, excerpt_en, summary_fa, summary_en,
			 content_fa, content_en, fingerprint, translation, categories, tags,
			 topics, published_at, scheduled_for, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.SourceID, a.Slug, a.Canonical, a.Image, a.Author, string(a.Language),
		string(a.Status), a.Title.FA, a.Title.EN, a.Excerpt.FA, a.Excerpt.EN,
		a.Summary.FA, a.Summary.EN, a.Content.FA, a.Content.EN, a.Fingerprint,
		string(translation), string(categories), string(tags), string(topics),
		milliPtr(a.PublishedAt), milliPtr(a.ScheduledFor), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return false, nil
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt = time.UnixMilli(now)
	a.UpdatedAt = a.CreatedAt
	return true, nil
}

// HasFingerprint reports whether an article with this dedup key exists.
func (s *Store) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM articles WHERE fingerprint = ?`, fingerprint).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return n > 0, nil
}

// EnsureUniqueSlug resolves collisions by suffixing -2, -3, ... onto the
// base slug. Assigned slugs are immutable, so taken slugs never free up.
func (s *Store) EnsureUniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		var n int
		err := s.DB.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM articles WHERE slug = ?`, candidate).Scan(&n)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// TransitionArticle performs a conditional status transition: the update
// succeeds only if the article is still in the expected prior state. A lost
// race degrades to a no-op (false) instead of corrupting state.
func (s *Store) TransitionArticle(ctx context.Context, id int64, from, to domain.ArticleStatus, extra map[string]any) (bool, error) {
	builder := psql.Update("articles").
		Set("status", string(to)).
		Set("updated_at", nowMilli()).
		Where(sq.Eq{"id": id, "status": string(from)})
	for col, val := range extra {
		builder = builder.Set(col, val)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition: %w", err)
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition article: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// GetArticle retrieves one article by id.
func (s *Store) GetArticle(ctx context.Context, id int64) (*domain.Article, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	return scanArticle(row)
}

// GetArticleBySlug retrieves one article by slug.
func (s *Store) GetArticleBySlug(ctx context.Context, slug string) (*domain.Article, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE slug = ?`, slug)
	return scanArticle(row)
}

// ListDueScheduled returns SCHEDULED articles whose scheduledFor has passed.
func (s *Store) ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Article, error) {
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?
		ORDER BY scheduled_for ASC`,
		string(domain.StatusScheduled), now.UnixMilli())
}

// ListPublishedSince returns PUBLISHED articles inside the rolling window.
func (s *Store) ListPublishedSince(ctx context.Context, since time.Time) ([]domain.Article, error) {
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status = ? AND published_at IS NOT NULL AND published_at >= ?
		ORDER BY published_at DESC`,
		string(domain.StatusPublished), since.UnixMilli())
}

// ReviewQueueFilter narrows the review-queue read model.
type ReviewQueueFilter struct {
	Statuses []domain.ArticleStatus
	Language domain.Language
	// IDs restricts to a pre-resolved set (free-text search hits).
	IDs    []int64
	Limit  int
	Offset int
}

// ReviewQueue lists non-published articles for editorial review. Returns
// the page plus the total match count.
func (s *Store) ReviewQueue(ctx context.Context, f ReviewQueueFilter) ([]domain.Article, int, error) {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = []domain.ArticleStatus{domain.StatusDraft, domain.StatusReviewed, domain.StatusScheduled, domain.StatusRejected}
	}
	statusStrs := make([]string, len(statuses))
	for i, st := range statuses {
		statusStrs[i] = string(st)
	}

	where := sq.And{sq.Eq{"status": statusStrs}}
	if f.Language != "" {
		where = append(where, sq.Eq{"language": string(f.Language)})
	}
	if f.IDs != nil {
		where = append(where, sq.Eq{"id": f.IDs})
	}

	countQuery, countArgs, err := psql.Select("COUNT(1)").From("articles").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := s.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count review queue: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query, args, err := psql.Select(articleColumns).From("articles").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build review queue: %w", err)
	}

	items, err := s.queryArticles(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// PendingReviewCount counts articles awaiting editorial action.
func (s *Store) PendingReviewCount(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM articles WHERE status IN (?, ?)`,
		string(domain.StatusDraft), string(domain.StatusReviewed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending review count: %w", err)
	}
	return n, nil
}

// UpdateArticleTopics stores computed topic predictions.
func (s *Store) UpdateArticleTopics(ctx context.Context, id int64, topics []domain.TopicScore) error {
	payload, _ := json.Marshal(topics)
	_, err := s.DB.ExecContext(ctx,
		`UPDATE articles SET topics = ?, updated_at = ? WHERE id = ?`,
		string(payload), nowMilli(), id)
	if err != nil {
		return fmt.Errorf("update topics: %w", err)
	}
	return nil
}

var translatableColumns = map[string]struct{}{
	"title_fa": {}, "title_en": {},
	"excerpt_fa": {}, "excerpt_en": {},
	"content_fa": {}, "content_en": {},
	"summary_fa": {}, "summary_en": {},
}

// UpdateTranslatedField writes one translated bilingual column together with
// the article's whole translation-state structure.
func (s *Store) UpdateTranslatedField(ctx context.Context, id int64, column, text string, state domain.TranslationState) error {
	if _, ok := translatableColumns[column]; !ok {
		return fmt.Errorf("column %s is not translatable", column)
	}
	payload, _ := json.Marshal(state)
	_, err := s.DB.ExecContext(ctx,
		`UPDATE articles SET `+column+` = ?, translation = ?, updated_at = ? WHERE id = ?`,
		text, string(payload), nowMilli(), id)
	if err != nil {
		return fmt.Errorf("update translated field: %w", err)
	}
	return nil
}

// UpdateTranslationState rewrites only the translation-state structure.
func (s *Store) UpdateTranslationState(ctx context.Context, id int64, state domain.TranslationState) error {
	payload, _ := json.Marshal(state)
	_, err := s.DB.ExecContext(ctx,
		`UPDATE articles SET translation = ?, updated_at = ? WHERE id = ?`,
		string(payload), nowMilli(), id)
	if err != nil {
		return fmt.Errorf("update translation state: %w", err)
	}
	return nil
}

// ListNeedingTranslation returns articles that still carry untranslated
// (source or fallback) fields, oldest first.
func (s *Store) ListNeedingTranslation(ctx context.Context, limit int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status != ?
		  AND (translation LIKE '%"status":"source"%' OR translation LIKE '%"status":"fallback"%')
		ORDER BY id ASC LIMIT ?`,
		string(domain.StatusRejected), limit)
}

func (s *Store) queryArticles(ctx context.Context, query string, args ...any) ([]domain.Article, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanArticle(row rowScanner) (*domain.Article, error) {
	var (
		a                             domain.Article
		lang, status                  string
		translation, categories, tags string
		topics                        string
		publishedAt, scheduledFor     sql.NullInt64
		createdAt, updatedAt          int64
	)
	err := row.Scan(
		&a.ID, &a.SourceID, &a.Slug, &a.Canonical, &a.Image, &a.Author, &lang,
		&status, &a.Title.FA, &a.Title.EN, &a.Excerpt.FA, &a.Excerpt.EN,
		&a.Summary.FA, &a.Summary.EN, &a.Content.FA, &a.Content.EN,
		&a.Fingerprint, &translation, &categories, &tags, &topics,
		&publishedAt, &scheduledFor, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan article: %w", err)
	}

	a.Language = domain.Language(lang)
	a.Status = domain.ArticleStatus(status)
	_ = json.Unmarshal([]byte(translation), &a.Translation)
	_ = json.Unmarshal([]byte(categories), &a.Categories)
	_ = json.Unmarshal([]byte(tags), &a.Tags)
	_ = json.Unmarshal([]byte(topics), &a.Topics)
	a.PublishedAt = timeFromMilli(publishedAt)
	a.ScheduledFor = timeFromMilli(scheduledFor)
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)
	return &a, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
