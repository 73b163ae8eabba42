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

// smsMaxLen keeps messages inside a single SMS segment budget.
const smsMaxLen = 280

// SMSChannel posts alerts to an HTTP SMS gateway.
type SMSChannel struct {
	endpoint   string
	apiKey     string
	recipients []string
	client     *http.Client
}

var _ Channel = (*SMSChannel)(nil)

// NewSMSChannel builds the channel from configuration.
func NewSMSChannel(cfg config.SMSConfig) *SMSChannel {
	return &SMSChannel{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		recipients: cfg.Recipients,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SMSChannel) Name() string { return "sms" }

// Send posts one truncated message to the gateway.
func (c *SMSChannel) Send(ctx context.Context, event domain.AlertEvent) error {
	if c.endpoint == "" || len(c.recipients) == 0 {
		return fmt.Errorf("sms channel misconfigured")
	}

	text := event.Subject + ": " + event.Message
	if runes := []rune(text); len(runes) > smsMaxLen {
		text = string(runes[:smsMaxLen])
	}

	body, err := json.Marshal(map[string]any{
		"to":   c.recipients,
		"text": text,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms api error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}
