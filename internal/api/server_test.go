package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsdesk/internal/cache"
	"newsdesk/internal/config"
	"newsdesk/internal/domain"
	"newsdesk/internal/publish"
	"newsdesk/internal/queue"
	"newsdesk/internal/search"
	"newsdesk/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Store, *queue.Queue) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := search.NewIndex()
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	q := queue.New(store, nil, 10*time.Millisecond)
	cfg := config.Config{
		HTTP:       config.HTTPConfig{Addr: ":0"},
		Monitoring: config.MonitoringConfig{TrackedJobs: []string{"ingest", "revalidate"}},
	}
	s := New(cfg, store, q, index, cache.New(time.Minute), nil, nil)
	return s, store, q
}

func seedArticle(t *testing.T, store *storage.Store, s *Server, status domain.ArticleStatus, slug, title string) domain.Article {
	t.Helper()
	src := domain.Source{
		Name:     slug,
		Homepage: "https://" + slug + ".example.com",
		RSSURL:   "https://" + slug + ".example.com/feed",
		Language: domain.LangEN,
		Enabled:  true,
	}
	require.NoError(t, store.InsertSource(context.Background(), &src))
	a := domain.Article{
		SourceID:    src.ID,
		Slug:        slug,
		Language:    domain.LangEN,
		Status:      status,
		Title:       domain.LocalizedText{EN: title},
		Fingerprint: "fp-" + slug,
	}
	created, err := store.InsertArticle(context.Background(), &a)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, s.index.IndexArticle(&a))
	return a
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
}

func TestReviewQueueEndpoint(t *testing.T) {
	s, store, _ := newTestServer(t)

	seedArticle(t, store, s, domain.StatusDraft, "draft-20260901", "A GPT benchmark story")
	seedArticle(t, store, s, domain.StatusReviewed, "reviewed-20260901", "Unrelated gardening")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/review-queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, body["total"])

	rec, body = doJSON(t, s.Handler(), http.MethodGet, "/api/review-queue?status=DRAFT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, body["total"])

	// Free text narrows through the search index.
	rec, body = doJSON(t, s.Handler(), http.MethodGet, "/api/review-queue?q=benchmark", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, body["total"])

	rec, body = doJSON(t, s.Handler(), http.MethodGet, "/api/review-queue?q=nomatchatall", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 0, body["total"])
}

func TestArticleEndpoint(t *testing.T) {
	s, store, _ := newTestServer(t)

	seedArticle(t, store, s, domain.StatusPublished, "live-20260901", "Live story")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/articles/live-20260901", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "live-20260901", body["Slug"])

	rec, _ = doJSON(t, s.Handler(), http.MethodGet, "/api/articles/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// The published article is now served from cache.
	cached, ok := s.cache.Get("article:live-20260901")
	require.True(t, ok)
	require.NotEmpty(t, cached)
}

func TestRevalidateEndpointEnqueues(t *testing.T) {
	s, store, q := newTestServer(t)

	seedArticle(t, store, s, domain.StatusPublished, "revalidate-me-20260901", "Story")

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/revalidate/revalidate-me-20260901", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "queued", body["status"])

	counts, err := q.Counts(context.Background(), publish.JobRevalidate)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Waiting)

	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/revalidate/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	s, store, _ := newTestServer(t)

	payload := []byte(`{"endpoint":"https://push.example/abc"}`)
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/push-subscriptions", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Re-subscribing the same endpoint stays a single row.
	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/push-subscriptions", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	subs, err := store.ListPushSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)

	rec, _ = doJSON(t, s.Handler(), http.MethodDelete, "/api/push-subscriptions", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	subs, err = store.ListPushSubscriptions(context.Background())
	require.NoError(t, err)
	require.Empty(t, subs)

	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/push-subscriptions", []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitoringEndpoint(t *testing.T) {
	s, store, q := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "ingest", nil))
	id, err := store.StartHeartbeat(ctx, "ingest")
	require.NoError(t, err)
	require.NoError(t, store.FinishHeartbeat(ctx, id, domain.HeartbeatSuccess, `{"created":5,"skipped":2}`))

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/monitoring", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, body, "jobs")
	require.Contains(t, body, "pending_review")

	// The ingest entry surfaces the last run's serialized stats.
	var ingestJob map[string]any
	for _, j := range body["jobs"].([]any) {
		entry := j.(map[string]any)
		if entry["job"] == "ingest" {
			ingestJob = entry
		}
	}
	require.NotNil(t, ingestJob)
	metrics := ingestJob["metrics"].(map[string]any)
	require.EqualValues(t, 5, metrics["created"])
	require.EqualValues(t, 2, metrics["skipped"])

	rec, body = doJSON(t, s.Handler(), http.MethodGet, "/api/queues", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queues := body["queues"].([]any)
	require.Len(t, queues, 2)
}
