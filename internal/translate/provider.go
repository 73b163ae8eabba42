package translate

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

// Provider performs one machine translation call and reports the token
// usage it consumed.
type Provider interface {
	Name() string
	Translate(ctx context.Context, src, dst domain.Language, text string) (translated string, inputTokens, outputTokens int, err error)
}

// ChooseProvider resolves the configured provider name. "none", an empty
// name or a missing API key resolve to nil; the service then answers every
// translation request with ErrNoProvider.
func ChooseProvider(cfg config.TranslationConfig) Provider {
	if cfg.Provider != "openai" || cfg.APIKey == "" {
		return nil
	}
	return NewOpenAIProvider(cfg)
}

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider from configuration.
func NewOpenAIProvider(cfg config.TranslationConfig) *OpenAIProvider {
	return &OpenAIProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

var languageNames = map[domain.Language]string{
	domain.LangFA: "Persian",
	domain.LangEN: "English",
}

// Translate posts the text as a user message and reads back the single
// completion plus its token usage.
func (p *OpenAIProvider) Translate(ctx context.Context, src, dst domain.Language, text string) (string, int, int, error) {
	if p.apiKey == "" || p.endpoint == "" || p.model == "" {
		return "", 0, 0, fmt.Errorf("translation provider misconfigured")
	}

	system := fmt.Sprintf(
		"You are a professional news translator. Translate the user's text from %s to %s. Preserve any HTML markup exactly. Reply with the translation only.",
		languageNames[src], languageNames[dst])

	body, err := json.Marshal(map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": text},
		},
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal translation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", 0, 0, fmt.Errorf("translation provider error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, fmt.Errorf("decode translation response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("translation response has no choices")
	}

	translated := strings.TrimSpace(out.Choices[0].Message.Content)
	if translated == "" {
		return "", 0, 0, fmt.Errorf("translation response is empty")
	}
	return translated, out.Usage.PromptTokens, out.Usage.CompletionTokens, nil
}
