package publish

import (
	"context"
	"fmt"
	"sort"

	"newsdesk/internal/domain"
	"newsdesk/internal/normalize"
)

const trendTopN = 8

// RefreshTrends recomputes the topic ranking over the rolling window of
// published articles and stores it as a new snapshot. Articles that never
// got topics assigned are scored lazily here and written back.
func (p *Publisher) RefreshTrends(ctx context.Context) error {
	since := p.now().Add(-p.trendWindow)
	articles, err := p.store.ListPublishedSince(ctx, since)
	if err != nil {
		return fmt.Errorf("list published: %w", err)
	}

	type agg struct {
		score    float64
		articles int
	}
	totals := map[string]*agg{}

	for i := range articles {
		a := &articles[i]
		if len(a.Topics) == 0 && p.topics != nil {
			text := a.Title.In(a.Language) + " " + normalize.StripHTML(a.Content.In(a.Language))
			a.Topics = p.topics.Predict(text)
			if len(a.Topics) > 0 {
				if err := p.store.UpdateArticleTopics(ctx, a.ID, a.Topics); err != nil {
					p.logger.Warn("backfill topics", "slug", a.Slug, "error", err)
				}
			}
		}
		for _, t := range a.Topics {
			if totals[t.Label] == nil {
				totals[t.Label] = &agg{}
			}
			totals[t.Label].score += t.Score
			totals[t.Label].articles++
		}
	}

	topics := make([]domain.TrendTopic, 0, len(totals))
	for label, a := range totals {
		topics = append(topics, domain.TrendTopic{
			Label:    label,
			Score:    a.score,
			Articles: a.articles,
		})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Score == topics[j].Score {
			return topics[i].Label < topics[j].Label
		}
		return topics[i].Score > topics[j].Score
	})
	if len(topics) > trendTopN {
		topics = topics[:trendTopN]
	}

	snap := domain.TrendSnapshot{
		ComputedAt:  p.now(),
		WindowHours: int(p.trendWindow.Hours()),
		Topics:      topics,
	}
	if err := p.store.InsertTrendSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store trend snapshot: %w", err)
	}

	if p.cache != nil {
		p.cache.InvalidatePrefix("trends")
	}
	p.logger.Info("trend snapshot refreshed",
		"window_hours", snap.WindowHours, "topics", len(topics), "articles", len(articles))
	return nil
}
