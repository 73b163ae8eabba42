package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsdesk/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSource(t *testing.T, store *Store) domain.Source {
	t.Helper()
	src := domain.Source{
		Name:     "Example Wire",
		Homepage: "https://example.com",
		RSSURL:   "https://example.com/feed",
		Language: domain.LangEN,
		Enabled:  true,
		Priority: 1,
	}
	require.NoError(t, store.InsertSource(context.Background(), &src))
	return src
}

// ensureSource returns an existing source id, seeding one when the store
// has none yet. Articles carry a foreign key to sources.
func ensureSource(t *testing.T, store *Store) int64 {
	t.Helper()
	var id int64
	err := store.DB.QueryRow(`SELECT id FROM sources ORDER BY id LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return seedSource(t, store).ID
	}
	require.NoError(t, err)
	return id
}

func seedArticle(t *testing.T, store *Store, status domain.ArticleStatus, mutate func(*domain.Article)) domain.Article {
	t.Helper()
	a := domain.Article{
		SourceID:    ensureSource(t, store),
		Slug:        "sample-20260901",
		Canonical:   "https://example.com/sample",
		Language:    domain.LangEN,
		Status:      status,
		Title:       domain.LocalizedText{EN: "Sample headline"},
		Content:     domain.LocalizedText{EN: "<p>Body</p>"},
		Fingerprint: "fp-sample",
		Translation: domain.TranslationState{
			Title:   domain.TranslationField{Status: domain.TranslationSource},
			Excerpt: domain.TranslationField{Status: domain.TranslationSource},
			Content: domain.TranslationField{Status: domain.TranslationSource},
		},
	}
	if mutate != nil {
		mutate(&a)
	}
	created, err := store.InsertArticle(context.Background(), &a)
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func TestInsertArticleDedupByFingerprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := seedArticle(t, store, domain.StatusDraft, nil)

	dup := first
	dup.ID = 0
	dup.Slug = "sample-20260901-2"
	created, err := store.InsertArticle(ctx, &dup)
	require.NoError(t, err)
	require.False(t, created)

	seen, err := store.HasFingerprint(ctx, first.Fingerprint)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestEnsureUniqueSlugSuffixes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedArticle(t, store, domain.StatusDraft, nil)

	slug, err := store.EnsureUniqueSlug(ctx, "sample-20260901")
	require.NoError(t, err)
	require.Equal(t, "sample-20260901-2", slug)

	seedArticle(t, store, domain.StatusDraft, func(a *domain.Article) {
		a.Slug = "sample-20260901-2"
		a.Fingerprint = "fp-other"
	})

	slug, err = store.EnsureUniqueSlug(ctx, "sample-20260901")
	require.NoError(t, err)
	require.Equal(t, "sample-20260901-3", slug)
}

func TestTransitionArticleIsConditional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := seedArticle(t, store, domain.StatusScheduled, func(a *domain.Article) {
		at := time.Now().Add(-time.Minute)
		a.ScheduledFor = &at
	})

	ok, err := store.TransitionArticle(ctx, a.ID, domain.StatusScheduled, domain.StatusPublished,
		map[string]any{"published_at": time.Now().UnixMilli(), "scheduled_for": nil})
	require.NoError(t, err)
	require.True(t, ok)

	// The second identical transition loses: the article is no longer
	// SCHEDULED, so the conditional update touches nothing.
	ok, err = store.TransitionArticle(ctx, a.ID, domain.StatusScheduled, domain.StatusPublished, nil)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := store.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	require.Nil(t, got.ScheduledFor)
}

func TestBlacklistDemotesScheduled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := seedSource(t, store)
	a := seedArticle(t, store, domain.StatusScheduled, func(a *domain.Article) {
		a.SourceID = src.ID
		at := time.Now().Add(time.Hour)
		a.ScheduledFor = &at
	})

	require.NoError(t, store.SetSourceBlacklisted(ctx, src.ID, true))

	got, err := store.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReviewed, got.Status)
	require.Nil(t, got.ScheduledFor)

	active, err := store.ListActiveSources(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestSourceHealthTracking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store)

	require.NoError(t, store.MarkSourceFailure(ctx, src.ID, 503, "upstream down"))
	require.NoError(t, store.MarkSourceFailure(ctx, src.ID, 503, "upstream down"))

	got, err := store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SourceError, got.LastStatus)
	require.Equal(t, 2, got.FailureStreak)
	require.Equal(t, "upstream down", got.LastError)

	require.NoError(t, store.MarkSourceSuccess(ctx, src.ID, 200))
	got, err = store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SourceOK, got.LastStatus)
	require.Zero(t, got.FailureStreak)
	require.NotNil(t, got.LastSuccessAt)
}

func TestUsageCountersAccumulate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in, out, err := store.AddUsage(ctx, "2026-09-01", 100, 40)
	require.NoError(t, err)
	require.Equal(t, 100, in)
	require.Equal(t, 40, out)

	in, out, err = store.AddUsage(ctx, "2026-09-01", 10, 5)
	require.NoError(t, err)
	require.Equal(t, 110, in)
	require.Equal(t, 45, out)

	// A different day starts from zero.
	in, out, err = store.GetUsage(ctx, "2026-09-02")
	require.NoError(t, err)
	require.Zero(t, in)
	require.Zero(t, out)
}

func TestTranslationCacheIdempotentPut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := CacheEntry{
		Hash:           "abc",
		Provider:       "openai",
		SourceLang:     "en",
		TargetLang:     "fa",
		SourceText:     "hello",
		TranslatedText: "سلام",
	}
	require.NoError(t, store.PutCachedTranslation(ctx, entry))

	entry.TranslatedText = "different"
	require.NoError(t, store.PutCachedTranslation(ctx, entry))

	got, err := store.GetCachedTranslation(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "سلام", got.TranslatedText)
}

func TestJobLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	inserted, err := store.EnqueueJob(ctx, "revalidate", `{"slug":"a"}`, now, "", 0)
	require.NoError(t, err)
	require.True(t, inserted)

	job, err := store.ClaimJob(ctx, "revalidate", now)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, domain.JobActive, job.State)
	require.Equal(t, `{"slug":"a"}`, job.Payload)

	// One active job per name blocks further claims.
	inserted, err = store.EnqueueJob(ctx, "revalidate", `{"slug":"b"}`, now, "", 0)
	require.NoError(t, err)
	require.True(t, inserted)
	blocked, err := store.ClaimJob(ctx, "revalidate", now)
	require.NoError(t, err)
	require.Nil(t, blocked)

	require.NoError(t, store.CompleteJob(ctx, job.ID))

	next, err := store.ClaimJob(ctx, "revalidate", now)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.NoError(t, store.FailJob(ctx, next.ID, "boom"))

	counts, err := store.JobCounts(ctx, "revalidate")
	require.NoError(t, err)
	require.Equal(t, 1, counts.Completed)
	require.Equal(t, 1, counts.Failed)
	require.Zero(t, counts.Waiting)
}

func TestEnqueueJobSingletonWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	inserted, err := store.EnqueueJob(ctx, "refresh-trends", "{}", now, "window", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.EnqueueJob(ctx, "refresh-trends", "{}", now, "window", 30*time.Minute)
	require.NoError(t, err)
	require.False(t, inserted)

	counts, err := store.JobCounts(ctx, "refresh-trends")
	require.NoError(t, err)
	require.Equal(t, 1, counts.Waiting)
}

func TestListNeedingTranslationMatchesStates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending := seedArticle(t, store, domain.StatusReviewed, nil)
	seedArticle(t, store, domain.StatusReviewed, func(a *domain.Article) {
		a.Slug = "done-20260901"
		a.Fingerprint = "fp-done"
		a.Translation = domain.TranslationState{
			Title:   domain.TranslationField{Status: domain.TranslationTranslated},
			Excerpt: domain.TranslationField{Status: domain.TranslationManual},
			Content: domain.TranslationField{Status: domain.TranslationTranslated},
		}
	})
	seedArticle(t, store, domain.StatusRejected, func(a *domain.Article) {
		a.Slug = "rejected-20260901"
		a.Fingerprint = "fp-rejected"
	})

	got, err := store.ListNeedingTranslation(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, pending.ID, got[0].ID)
}

func TestReviewQueueFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	draft := seedArticle(t, store, domain.StatusDraft, nil)
	seedArticle(t, store, domain.StatusReviewed, func(a *domain.Article) {
		a.Slug = "second-20260901"
		a.Fingerprint = "fp-second"
		a.Language = domain.LangFA
		a.Title = domain.LocalizedText{FA: "تیتر"}
	})

	items, total, err := store.ReviewQueue(ctx, ReviewQueueFilter{
		Statuses: []domain.ArticleStatus{domain.StatusDraft},
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)
	require.Equal(t, draft.ID, items[0].ID)

	items, total, err = store.ReviewQueue(ctx, ReviewQueueFilter{Language: domain.LangFA})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "second-20260901", items[0].Slug)

	count, err := store.PendingReviewCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
