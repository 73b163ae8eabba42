// Package push notifies registered subscriber endpoints when an article
// goes live. Endpoints that answer 404 or 410 are treated as gone and
// removed, so the subscription list is self-pruning.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"newsdesk/internal/domain"
	"newsdesk/internal/storage"
)

// Notification is the payload delivered to every endpoint.
type Notification struct {
	Slug    string `json:"slug"`
	TitleFA string `json:"title_fa"`
	TitleEN string `json:"title_en"`
}

// Sender posts notifications to all stored subscriptions.
type Sender struct {
	store  *storage.Store
	client *http.Client
	logger *slog.Logger
}

// NewSender builds a sender. client may be nil.
func NewSender(store *storage.Store, client *http.Client, logger *slog.Logger) *Sender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{store: store, client: client, logger: logger}
}

// NotifyPublished fans the article out to every subscription. Per-endpoint
// failures are logged and do not stop the fan-out; gone endpoints are
// deleted. Returns how many deliveries succeeded.
func (s *Sender) NotifyPublished(ctx context.Context, a *domain.Article) (int, error) {
	subs, err := s.store.ListPushSubscriptions(ctx)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(Notification{
		Slug:    a.Slug,
		TitleFA: a.Title.FA,
		TitleEN: a.Title.EN,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal push payload: %w", err)
	}

	delivered := 0
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		switch err := s.post(ctx, sub.Endpoint, payload); {
		case err == nil:
			delivered++
		case isGone(err):
			s.logger.Info("pruning gone push endpoint", "endpoint", sub.Endpoint)
			if derr := s.store.DeletePushSubscription(ctx, sub.Endpoint); derr != nil {
				s.logger.Warn("delete push subscription", "endpoint", sub.Endpoint, "error", derr)
			}
		default:
			s.logger.Warn("push delivery failed", "endpoint", sub.Endpoint, "error", err)
		}
	}
	return delivered, nil
}

type goneError struct{ status int }

func (e *goneError) Error() string {
	return fmt.Sprintf("endpoint gone: status %d", e.status)
}

func isGone(err error) bool {
	_, ok := err.(*goneError)
	return ok
}

func (s *Sender) post(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &goneError{status: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("push endpoint error: %s", resp.Status)
	}
	return nil
}
