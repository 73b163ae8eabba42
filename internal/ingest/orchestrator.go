// Package ingest runs one ingestion pass: fetch every active source, turn
// the candidates into article drafts, classify, summarize and persist them.
// A single bad source marks itself failed and never aborts the pass.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"newsdesk/internal/classify"
	"newsdesk/internal/domain"
	"newsdesk/internal/fetch"
	"newsdesk/internal/normalize"
	"newsdesk/internal/search"
	"newsdesk/internal/storage"
	"newsdesk/internal/summarize"
)

// Stats summarizes one ingestion pass. Serialized onto the run's heartbeat
// so the monitoring read model can show the last run's numbers.
type Stats struct {
	Sources       int `json:"sources"`
	SourcesFailed int `json:"sources_failed"`
	Fetched       int `json:"fetched"`
	Created       int `json:"created"`
	Skipped       int `json:"skipped"`
	PendingReview int `json:"pending_review"`
}

// Encode serializes the stats for the heartbeat message.
func (s Stats) Encode() string {
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Orchestrator wires the pipeline stages for one pass.
type Orchestrator struct {
	store      *storage.Store
	fetcher    *fetch.Service
	normalizer *normalize.Normalizer
	topics     *classify.TopicPredictor
	index      *search.Index
	logger     *slog.Logger
}

// New builds an orchestrator. index may be nil when no search index is
// maintained (CLI one-shot runs).
func New(store *storage.Store, fetcher *fetch.Service, normalizer *normalize.Normalizer,
	topics *classify.TopicPredictor, index *search.Index, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		fetcher:    fetcher,
		normalizer: normalizer,
		topics:     topics,
		index:      index,
		logger:     logger,
	}
}

// Run executes one full ingestion pass over all active sources, in
// priority order.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	sources, err := o.store.ListActiveSources(ctx)
	if err != nil {
		return stats, fmt.Errorf("list sources: %w", err)
	}
	stats.Sources = len(sources)

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := o.ingestSource(ctx, src, &stats); err != nil {
			stats.SourcesFailed++
			o.logger.Error("source ingestion failed",
				"source", src.Name, "error", err)
		}
	}

	pending, err := o.store.PendingReviewCount(ctx)
	if err != nil {
		return stats, fmt.Errorf("pending review count: %w", err)
	}
	stats.PendingReview = pending

	o.logger.Info("ingestion pass finished",
		"sources", stats.Sources, "failed", stats.SourcesFailed,
		"fetched", stats.Fetched, "created", stats.Created,
		"skipped", stats.Skipped, "pending_review", stats.PendingReview)
	return stats, nil
}

// ingestSource fetches and persists one source, updating its health row
// either way.
func (o *Orchestrator) ingestSource(ctx context.Context, src domain.Source, stats *Stats) error {
	result, err := o.fetcher.FetchSource(ctx, src)
	if err != nil {
		statusCode := 0
		var failure *fetch.Failure
		if errors.As(err, &failure) {
			statusCode = failure.StatusCode
		}
		if merr := o.store.MarkSourceFailure(ctx, src.ID, statusCode, err.Error()); merr != nil {
			o.logger.Warn("mark source failure", "source", src.Name, "error", merr)
		}
		return err
	}

	for _, warning := range result.Warnings {
		o.logger.Warn("degraded fetch", "source", src.Name, "warning", warning)
	}
	if err := o.store.MarkSourceSuccess(ctx, src.ID, result.StatusCode); err != nil {
		o.logger.Warn("mark source success", "source", src.Name, "error", err)
	}

	stats.Fetched += len(result.Items)
	for _, item := range result.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		created, err := o.ingestItem(ctx, item, src)
		if err != nil {
			o.logger.Warn("item ingestion failed",
				"source", src.Name, "url", item.URL, "error", err)
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Skipped++
		}
	}
	return nil
}

// ingestItem normalizes, enriches and persists one candidate. Returns
// whether a new article was created.
func (o *Orchestrator) ingestItem(ctx context.Context, item domain.RawItem, src domain.Source) (bool, error) {
	draft := o.normalizer.Normalize(item, src)

	// Cheap existence probe before the enrichment work. The insert is
	// still INSERT OR IGNORE, so a concurrent duplicate stays harmless.
	if seen, err := o.store.HasFingerprint(ctx, draft.Fingerprint); err != nil {
		return false, err
	} else if seen {
		return false, nil
	}

	text := draft.Title.In(draft.Language) + " " +
		draft.Excerpt.In(draft.Language) + " " +
		normalize.StripHTML(draft.Content.In(draft.Language))

	draft.Categories, draft.Tags = classify.ClassifyText(text)
	draft.Topics = o.topics.Predict(text)

	summary := summarize.Summarize(draft.Content.In(draft.Language), draft.Language)
	if draft.Language == domain.LangFA {
		draft.Summary.FA = summary
	} else {
		draft.Summary.EN = summary
	}

	slug, err := o.store.EnsureUniqueSlug(ctx, draft.Slug)
	if err != nil {
		return false, err
	}
	draft.Slug = slug

	created, err := o.store.InsertArticle(ctx, &draft)
	if err != nil {
		return false, err
	}
	if created && o.index != nil {
		if err := o.index.IndexArticle(&draft); err != nil {
			o.logger.Warn("index article", "slug", draft.Slug, "error", err)
		}
	}
	return created, nil
}
