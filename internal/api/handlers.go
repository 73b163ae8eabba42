package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"newsdesk/internal/domain"
	"newsdesk/internal/publish"
	"newsdesk/internal/storage"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReviewQueue lists non-published articles with status, language and
// free-text filters. Free text resolves through the search index first and
// the IDs constrain the SQL query.
func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.ReviewQueueFilter{
		Language: domain.Language(q.Get("lang")),
		Limit:    parseIntDefault(q.Get("limit"), 50),
		Offset:   parseIntDefault(q.Get("offset"), 0),
	}
	for _, status := range strings.Split(q.Get("status"), ",") {
		if status = strings.TrimSpace(status); status != "" {
			filter.Statuses = append(filter.Statuses, domain.ArticleStatus(status))
		}
	}

	if text := strings.TrimSpace(q.Get("q")); text != "" && s.index != nil {
		ids, err := s.index.Search(text, filter.Limit+filter.Offset)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if len(ids) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"items": []domain.Article{}, "total": 0})
			return
		}
		filter.IDs = ids
	}

	items, total, err := s.store.ReviewQueue(r.Context(), filter)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	cacheKey := "article:" + slug

	if s.cache != nil {
		if body, ok := s.cache.Get(cacheKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
	}

	a, err := s.store.GetArticleBySlug(r.Context(), slug)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if a == nil {
		http.Error(w, "article not found", http.StatusNotFound)
		return
	}

	body, err := json.Marshal(a)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	// Only settled content is cacheable; drafts change under editors.
	if s.cache != nil && a.Status == domain.StatusPublished {
		s.cache.Set(cacheKey, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		if body, ok := s.cache.Get("trends"); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
	}

	snap, err := s.store.LatestTrendSnapshot(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{"topics": []domain.TrendTopic{}})
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if s.cache != nil {
		s.cache.Set("trends", body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleMonitoring aggregates the operational read model: last heartbeat
// per tracked job, queue snapshots, recent alerts and the review backlog.
func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	type jobHealth struct {
		Job         string             `json:"job"`
		LastSuccess *domain.Heartbeat  `json:"last_success,omitempty"`
		Metrics     json.RawMessage    `json:"metrics,omitempty"`
		Recent      []domain.Heartbeat `json:"recent,omitempty"`
	}

	jobs := make([]jobHealth, 0, len(s.trackedJobs))
	for _, job := range s.trackedJobs {
		lastSuccess, err := s.store.LastHeartbeat(ctx, job, domain.HeartbeatSuccess)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		recent, err := s.store.RecentHeartbeats(ctx, job, 5)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		jh := jobHealth{Job: job, LastSuccess: lastSuccess, Recent: recent}
		// Runs that serialize their stats onto the heartbeat surface them
		// here as the last run's metrics.
		if lastSuccess != nil && lastSuccess.Message != "" && json.Valid([]byte(lastSuccess.Message)) {
			jh.Metrics = json.RawMessage(lastSuccess.Message)
		}
		jobs = append(jobs, jh)
	}

	snapshots, err := s.store.RecentQueueSnapshots(ctx, 20)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	alerts, err := s.store.RecentAlerts(ctx, 20)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	pending, err := s.store.PendingReviewCount(ctx)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":            jobs,
		"queue_snapshots": snapshots,
		"alerts":          alerts,
		"pending_review":  pending,
	})
}

func (s *Server) handleTranslationHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.store.TranslationHealth(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := map[string]any{"providers": health}
	if s.translator != nil {
		in, out, limit, err := s.translator.Usage(r.Context())
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		resp["usage"] = map[string]int{
			"input_tokens":  in,
			"output_tokens": out,
			"daily_limit":   limit,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	counts := make([]domain.QueueSnapshot, 0, len(s.trackedJobs))
	for _, job := range s.trackedJobs {
		snap, err := s.queue.Counts(r.Context(), job)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		counts = append(counts, snap)
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": counts})
}

// handleRevalidate enqueues a revalidation job for one article.
func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if a, err := s.store.GetArticleBySlug(r.Context(), slug); err != nil {
		s.serverError(w, r, err)
		return
	} else if a == nil {
		http.Error(w, "article not found", http.StatusNotFound)
		return
	}

	if err := s.queue.Enqueue(r.Context(), publish.JobRevalidate, publish.SlugPayload{Slug: slug}); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "slug": slug})
}

type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Endpoint) == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}
	if err := s.store.AddPushSubscription(r.Context(), req.Endpoint); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Endpoint) == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
