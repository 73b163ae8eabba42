// Package publish drives the scheduled-to-published half of the article
// state machine and the follow-up work a newly live article triggers:
// cache invalidation, revalidation, trend refresh and push delivery.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"newsdesk/internal/cache"
	"newsdesk/internal/classify"
	"newsdesk/internal/domain"
	"newsdesk/internal/normalize"
	"newsdesk/internal/queue"
	"newsdesk/internal/search"
	"newsdesk/internal/storage"
	"newsdesk/internal/summarize"
)

// Job names owned by this package.
const (
	JobPublishDue    = "publish-due"
	JobRevalidate    = "revalidate"
	JobRefreshTrends = "refresh-trends"
	JobNotifyPush    = "notify-push"
)

// SlugPayload is the payload of per-article follow-up jobs.
type SlugPayload struct {
	Slug string `json:"slug"`
}

// Publisher owns publication side effects.
type Publisher struct {
	store          *storage.Store
	queue          *queue.Queue
	cache          *cache.Cache
	topics         *classify.TopicPredictor
	index          *search.Index
	logger         *slog.Logger
	trendWindow    time.Duration
	trendSingleton time.Duration

	now func() time.Time
}

// New wires a publisher. cache and index may be nil in one-shot CLI runs.
func New(store *storage.Store, q *queue.Queue, c *cache.Cache,
	topics *classify.TopicPredictor, index *search.Index,
	trendWindow, trendSingleton time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if trendWindow <= 0 {
		trendWindow = 12 * time.Hour
	}
	if trendSingleton <= 0 {
		trendSingleton = 30 * time.Minute
	}
	return &Publisher{
		store:          store,
		queue:          q,
		cache:          c,
		topics:         topics,
		index:          index,
		logger:         logger,
		trendWindow:    trendWindow,
		trendSingleton: trendSingleton,
		now:            time.Now,
	}
}

// PublishDue flips every due SCHEDULED article to PUBLISHED and fans out
// the follow-up work. A per-article failure is logged and the rest of the
// batch continues. Returns how many articles went live.
func (p *Publisher) PublishDue(ctx context.Context) (int, error) {
	due, err := p.store.ListDueScheduled(ctx, p.now())
	if err != nil {
		return 0, fmt.Errorf("list due articles: %w", err)
	}

	published := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := p.publishOne(ctx, &due[i]); err != nil {
			p.logger.Error("publish article failed",
				"slug", due[i].Slug, "error", err)
			continue
		}
		published++
	}
	return published, nil
}

func (p *Publisher) publishOne(ctx context.Context, a *domain.Article) error {
	now := p.now()
	ok, err := p.store.TransitionArticle(ctx, a.ID,
		domain.StatusScheduled, domain.StatusPublished,
		map[string]any{
			"published_at":  now.UnixMilli(),
			"scheduled_for": nil,
		})
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to a concurrent publisher or an editor demoted
		// the article; either way there is nothing left to do.
		p.logger.Debug("publish transition skipped", "slug", a.Slug)
		return nil
	}

	p.logger.Info("article published", "slug", a.Slug, "source_id", a.SourceID)
	p.invalidate(a.Slug)

	if p.queue != nil {
		payload := SlugPayload{Slug: a.Slug}
		if err := p.queue.Enqueue(ctx, JobRevalidate, payload); err != nil {
			return fmt.Errorf("enqueue revalidate: %w", err)
		}
		if err := p.queue.Enqueue(ctx, JobRefreshTrends, nil,
			queue.WithSingleton("window", p.trendSingleton)); err != nil {
			return fmt.Errorf("enqueue trend refresh: %w", err)
		}
		if err := p.queue.Enqueue(ctx, JobNotifyPush, payload); err != nil {
			return fmt.Errorf("enqueue push: %w", err)
		}
	}
	return nil
}

// Revalidate recomputes the derived fields of one published article:
// classification, topics and summary. Manual edits to the bilingual text
// are left alone, only derived data is refreshed.
func (p *Publisher) Revalidate(ctx context.Context, slug string) error {
	a, err := p.store.GetArticleBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("load article %s: %w", slug, err)
	}
	if a == nil {
		return fmt.Errorf("article %s not found", slug)
	}

	text := a.Title.In(a.Language) + " " +
		a.Excerpt.In(a.Language) + " " +
		normalize.StripHTML(a.Content.In(a.Language))

	a.Categories, a.Tags = classify.ClassifyText(text)
	if p.topics != nil {
		a.Topics = p.topics.Predict(text)
	}

	summary := summarize.Summarize(a.Content.In(a.Language), a.Language)
	if a.Language == domain.LangFA {
		a.Summary.FA = summary
	} else {
		a.Summary.EN = summary
	}

	if err := p.store.UpdateArticleTopics(ctx, a.ID, a.Topics); err != nil {
		return err
	}
	if p.index != nil {
		if err := p.index.IndexArticle(a); err != nil {
			p.logger.Warn("reindex article", "slug", slug, "error", err)
		}
	}
	p.invalidate(slug)
	return nil
}

// ParseSlugPayload decodes a per-article job payload.
func ParseSlugPayload(raw []byte) (SlugPayload, error) {
	var p SlugPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode slug payload: %w", err)
	}
	if p.Slug == "" {
		return p, fmt.Errorf("slug payload is empty")
	}
	return p, nil
}

func (p *Publisher) invalidate(slug string) {
	if p.cache == nil {
		return
	}
	p.cache.Invalidate("article:" + slug)
	p.cache.InvalidatePrefix("articles:")
	p.cache.InvalidatePrefix("trends")
}
