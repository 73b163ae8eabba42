package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/domain"
)

// EmailChannel posts alerts to an HTTP email-delivery API.
type EmailChannel struct {
	endpoint   string
	apiKey     string
	from       string
	recipients []string
	client     *http.Client
}

var _ Channel = (*EmailChannel)(nil)

// NewEmailChannel builds the channel from configuration.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		recipients: cfg.Recipients,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *EmailChannel) Name() string { return "email" }

// Send posts one JSON message per configured recipient list.
func (c *EmailChannel) Send(ctx context.Context, event domain.AlertEvent) error {
	if c.endpoint == "" || len(c.recipients) == 0 {
		return fmt.Errorf("email channel misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"from":    c.from,
		"to":      c.recipients,
		"subject": fmt.Sprintf("[%s] %s", strings.ToUpper(string(event.Severity)), event.Subject),
		"text":    event.Message,
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email api error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}
