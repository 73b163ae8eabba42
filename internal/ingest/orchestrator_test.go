package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsdesk/internal/classify"
	"newsdesk/internal/config"
	"newsdesk/internal/domain"
	"newsdesk/internal/fetch"
	"newsdesk/internal/normalize"
	"newsdesk/internal/storage"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>AI Wire</title>
    <item>
      <title>OpenAI launches a new GPT tool</title>
      <link>https://example.com/gpt-tool</link>
      <description>An open source SDK ships alongside it.</description>
      <pubDate>Mon, 31 Aug 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>ربات جدید معرفی شد</title>
      <link>https://example.com/fa-robot</link>
      <description>رونمایی از ربات انسان‌نما.</description>
    </item>
  </channel>
</rss>`

func newTestOrchestrator(t *testing.T) (*Orchestrator, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fetcher := fetch.NewService(config.FetchConfig{Timeout: 5 * time.Second, MaxCandidates: 10}, nil, nil)
	o := New(store, fetcher, normalize.New(), classify.NewTopicPredictor("", nil), nil, nil)
	return o, store
}

func TestRunIngestsAndDeduplicates(t *testing.T) {
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testFeed)
	}))
	defer feed.Close()

	src := domain.Source{
		Name:     "AI Wire",
		Homepage: "https://example.com",
		RSSURL:   feed.URL,
		Language: domain.LangEN,
		Enabled:  true,
	}
	require.NoError(t, store.InsertSource(ctx, &src))

	stats, err := o.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sources)
	require.Zero(t, stats.SourcesFailed)
	require.Equal(t, 2, stats.Fetched)
	require.Equal(t, 2, stats.Created)
	require.Equal(t, 2, stats.PendingReview)

	// Drafts landed with derived data attached.
	en, err := store.GetArticleBySlug(ctx, "openai-launches-a-new-gpt-tool-20260831")
	require.NoError(t, err)
	require.NotNil(t, en)
	require.Equal(t, domain.StatusDraft, en.Status)
	require.Contains(t, en.Categories, "news")
	require.Contains(t, en.Tags, "llm")
	require.NotEmpty(t, en.Topics)
	require.NotEmpty(t, en.Summary.EN)

	// The Persian item detected its language from the text.
	items, _, err := store.ReviewQueue(ctx, storage.ReviewQueueFilter{Language: domain.LangFA})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "ربات جدید معرفی شد", items[0].Title.FA)

	// Re-running creates nothing new.
	stats, err = o.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Created)
	require.Equal(t, 2, stats.Skipped)

	got, err := store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SourceOK, got.LastStatus)
}

func TestRunIsolatesFailingSource(t *testing.T) {
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testFeed)
	}))
	defer feed.Close()
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer dead.Close()

	bad := domain.Source{
		Name: "Broken", Homepage: "https://broken.example",
		RSSURL: dead.URL, Language: domain.LangEN, Enabled: true, Priority: 1,
	}
	good := domain.Source{
		Name: "Working", Homepage: "https://working.example",
		RSSURL: feed.URL, Language: domain.LangEN, Enabled: true, Priority: 2,
	}
	require.NoError(t, store.InsertSource(ctx, &bad))
	require.NoError(t, store.InsertSource(ctx, &good))

	stats, err := o.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Sources)
	require.Equal(t, 1, stats.SourcesFailed)
	require.Equal(t, 2, stats.Created)

	gotBad, err := store.GetSource(ctx, bad.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SourceError, gotBad.LastStatus)
	require.Equal(t, http.StatusForbidden, gotBad.LastStatusCode)
	require.Equal(t, 1, gotBad.FailureStreak)
}
