package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsdesk/internal/cache"
	"newsdesk/internal/classify"
	"newsdesk/internal/domain"
	"newsdesk/internal/queue"
	"newsdesk/internal/storage"
)

func newTestPublisher(t *testing.T) (*Publisher, *storage.Store, *queue.Queue) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q := queue.New(store, nil, 10*time.Millisecond)
	p := New(store, q, cache.New(time.Minute), classify.NewTopicPredictor("", nil), nil,
		12*time.Hour, 30*time.Minute, nil)
	return p, store, q
}

func seedSource(t *testing.T, store *storage.Store, name string) domain.Source {
	t.Helper()
	src := domain.Source{
		Name:     name,
		Homepage: "https://" + name + ".example.com",
		RSSURL:   "https://" + name + ".example.com/feed",
		Language: domain.LangEN,
		Enabled:  true,
	}
	require.NoError(t, store.InsertSource(context.Background(), &src))
	return src
}

func seedScheduled(t *testing.T, store *storage.Store, slug string, due time.Time) domain.Article {
	t.Helper()
	src := seedSource(t, store, slug)
	a := domain.Article{
		SourceID:     src.ID,
		Slug:         slug,
		Language:     domain.LangEN,
		Status:       domain.StatusScheduled,
		Title:        domain.LocalizedText{EN: "Scheduled story"},
		Content:      domain.LocalizedText{EN: "<p>A new GPT tool was launched today.</p>"},
		Fingerprint:  "fp-" + slug,
		ScheduledFor: &due,
	}
	created, err := store.InsertArticle(context.Background(), &a)
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func TestPublishDueTransitionsAndEnqueuesFollowUps(t *testing.T) {
	p, store, q := newTestPublisher(t)
	ctx := context.Background()

	a := seedScheduled(t, store, "due-20260901", time.Now().Add(-time.Minute))
	seedScheduled(t, store, "later-20260901", time.Now().Add(time.Hour))

	published, err := p.PublishDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, published)

	got, err := store.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	require.Nil(t, got.ScheduledFor)

	// Exactly one revalidate per published article, plus the singleton
	// trend refresh and one push job.
	reval, err := q.Counts(ctx, JobRevalidate)
	require.NoError(t, err)
	require.Equal(t, 1, reval.Waiting)

	trends, err := q.Counts(ctx, JobRefreshTrends)
	require.NoError(t, err)
	require.Equal(t, 1, trends.Waiting)

	pushes, err := q.Counts(ctx, JobNotifyPush)
	require.NoError(t, err)
	require.Equal(t, 1, pushes.Waiting)
}

func TestPublishDueIsIdempotent(t *testing.T) {
	p, _, q := newTestPublisher(t)
	ctx := context.Background()

	seedScheduled(t, p.store, "once-20260901", time.Now().Add(-time.Minute))

	published, err := p.PublishDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, published)

	// A second pass finds nothing due: no extra transitions and no extra
	// follow-up jobs.
	published, err = p.PublishDue(ctx)
	require.NoError(t, err)
	require.Zero(t, published)

	reval, err := q.Counts(ctx, JobRevalidate)
	require.NoError(t, err)
	require.Equal(t, 1, reval.Waiting)
}

func TestPublishDueSingletonTrendRefresh(t *testing.T) {
	p, store, q := newTestPublisher(t)
	ctx := context.Background()

	seedScheduled(t, store, "one-20260901", time.Now().Add(-time.Minute))
	seedScheduled(t, store, "two-20260901", time.Now().Add(-time.Minute))

	published, err := p.PublishDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, published)

	// Two articles, two revalidates, one collapsed trend refresh.
	reval, err := q.Counts(ctx, JobRevalidate)
	require.NoError(t, err)
	require.Equal(t, 2, reval.Waiting)

	trends, err := q.Counts(ctx, JobRefreshTrends)
	require.NoError(t, err)
	require.Equal(t, 1, trends.Waiting)
}

func TestPublishDueConcurrentRunsPublishOnce(t *testing.T) {
	p, store, q := newTestPublisher(t)
	ctx := context.Background()

	a := seedScheduled(t, store, "race-20260901", time.Now().Add(-time.Minute))

	// Two simultaneous passes both see the due article; the conditional
	// transition lets exactly one of them win.
	results := make(chan int, 2)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := p.PublishDue(ctx)
			results <- n
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	total := 0
	for n := range results {
		total += n
	}
	require.Equal(t, 1, total)

	got, err := store.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPublished, got.Status)

	// One winner means one enqueue set.
	reval, err := q.Counts(ctx, JobRevalidate)
	require.NoError(t, err)
	require.Equal(t, 1, reval.Waiting)

	trends, err := q.Counts(ctx, JobRefreshTrends)
	require.NoError(t, err)
	require.Equal(t, 1, trends.Waiting)

	pushes, err := q.Counts(ctx, JobNotifyPush)
	require.NoError(t, err)
	require.Equal(t, 1, pushes.Waiting)
}

func TestRevalidateRecomputesDerivedData(t *testing.T) {
	p, store, _ := newTestPublisher(t)
	ctx := context.Background()

	a := seedScheduled(t, store, "derive-20260901", time.Now().Add(-time.Minute))
	_, err := p.PublishDue(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Revalidate(ctx, "derive-20260901"))

	got, err := store.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.Topics)

	require.Error(t, p.Revalidate(ctx, "missing-slug"))
}

func TestRefreshTrendsRanksTopics(t *testing.T) {
	p, store, _ := newTestPublisher(t)
	ctx := context.Background()

	src := seedSource(t, store, "trend-wire")
	now := time.Now()
	for i, spec := range []struct {
		slug   string
		topics []domain.TopicScore
	}{
		{"t1-20260901", []domain.TopicScore{{Label: "generative-ai", Score: 0.9}}},
		{"t2-20260901", []domain.TopicScore{{Label: "generative-ai", Score: 0.8}, {Label: "robotics", Score: 0.4}}},
		{"t3-20260901", []domain.TopicScore{{Label: "robotics", Score: 0.5}}},
	} {
		at := now.Add(-time.Duration(i) * time.Hour)
		a := domain.Article{
			SourceID:    src.ID,
			Slug:        spec.slug,
			Language:    domain.LangEN,
			Status:      domain.StatusPublished,
			Title:       domain.LocalizedText{EN: "x"},
			Fingerprint: "fp-" + spec.slug,
			Topics:      spec.topics,
			PublishedAt: &at,
		}
		created, err := store.InsertArticle(ctx, &a)
		require.NoError(t, err)
		require.True(t, created)
	}

	require.NoError(t, p.RefreshTrends(ctx))

	snap, err := store.LatestTrendSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, 12, snap.WindowHours)
	require.Len(t, snap.Topics, 2)
	require.Equal(t, "generative-ai", snap.Topics[0].Label)
	require.Equal(t, 2, snap.Topics[0].Articles)
	require.InDelta(t, 1.7, snap.Topics[0].Score, 0.001)
	require.Equal(t, "robotics", snap.Topics[1].Label)
}
