// Package fetch pulls candidate stories from a source's RSS feed, falling
// back to scraping its listing page when the feed is unavailable.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"newsdesk/internal/config"
	"newsdesk/internal/domain"
)

const acceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/html;q=0.8, */*;q=0.7"

// Result is a successful fetch: normalized raw items plus warnings for
// degraded paths (e.g. the HTML fallback was used).
type Result struct {
	Items      []domain.RawItem
	StatusCode int
	Warnings   []string
}

// Failure is the typed hard-failure of a fetch attempt. StatusCode is zero
// when the failure happened below HTTP (network error, timeout).
type Failure struct {
	StatusCode int
	Reason     string
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("fetch failed (status %d): %s", f.StatusCode, f.Reason)
	}
	return "fetch failed: " + f.Reason
}

// Service fetches one source's candidate stories.
type Service struct {
	client        *http.Client
	parser        *gofeed.Parser
	logger        *slog.Logger
	userAgent     string
	timeout       time.Duration
	maxCandidates int
}

// NewService wires an HTTP client; pass nil to use a default one. The
// timeout bounds every outbound request so one misbehaving source cannot
// stall a whole ingestion pass.
func NewService(cfg config.FetchConfig, client *http.Client, logger *slog.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxCandidates := cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 25
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		client:        client,
		parser:        gofeed.NewParser(),
		logger:        logger,
		userAgent:     cfg.UserAgent,
		timeout:       timeout,
		maxCandidates: maxCandidates,
	}
}

// FetchSource tries RSS first and falls back to listing-page scraping.
// Hard failures come back as *Failure; warnings mark degraded success.
func (s *Service) FetchSource(ctx context.Context, src domain.Source) (*Result, error) {
	if !src.Fetchable() {
		return nil, &Failure{Reason: "no RSS and no scrape URL configured"}
	}

	if src.RSSURL == "" {
		return s.scrapeListing(ctx, src.ScrapeURL, nil)
	}

	result, rssErr := s.fetchRSS(ctx, src.RSSURL)
	if rssErr == nil {
		return result, nil
	}

	if src.ScrapeURL == "" {
		return nil, rssErr
	}

	warning := fmt.Sprintf("rss fetch failed (%v); used html listing fallback", rssErr)
	s.logger.Warn("falling back to html listing", "source", src.Name, "error", rssErr)

	scraped, scrapeErr := s.scrapeListing(ctx, src.ScrapeURL, []string{warning})
	if scrapeErr != nil {
		// The feed failure is the primary signal; the fallback failing
		// too does not change the source's reported state.
		return nil, rssErr
	}
	return scraped, nil
}

func (s *Service) fetchRSS(ctx context.Context, feedURL string) (*Result, error) {
	resp, err := s.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	parsed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, &Failure{StatusCode: resp.StatusCode, Reason: fmt.Sprintf("parse feed: %v", err)}
	}

	items := make([]domain.RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		items = append(items, feedItem(item))
	}

	return &Result{Items: items, StatusCode: resp.StatusCode}, nil
}

func feedItem(item *gofeed.Item) domain.RawItem {
	raw := domain.RawItem{
		Title:   strings.TrimSpace(item.Title),
		URL:     item.Link,
		Summary: strings.TrimSpace(item.Description),
		Content: item.Content,
	}

	if item.PublishedParsed != nil {
		raw.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		raw.PublishedAt = item.UpdatedParsed
	}

	if item.Image != nil && item.Image.URL != "" {
		raw.Image = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
				raw.Image = enc.URL
				break
			}
		}
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		raw.Author = item.Authors[0].Name
	}

	return raw
}

// scrapeListing extracts candidate links from an HTML listing page and
// enriches each with page metadata, best-effort.
func (s *Service) scrapeListing(ctx context.Context, listingURL string, warnings []string) (*Result, error) {
	resp, err := s.get(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &Failure{StatusCode: resp.StatusCode, Reason: fmt.Sprintf("parse listing: %v", err)}
	}

	type candidate struct {
		url   string
		title string
	}
	var candidates []candidate
	seen := map[string]struct{}{}

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if !isAbsoluteHTTP(href) {
			return true
		}
		if _, ok := seen[href]; ok {
			return true
		}
		seen[href] = struct{}{}
		candidates = append(candidates, candidate{
			url:   href,
			title: strings.TrimSpace(sel.Text()),
		})
		return len(candidates) < s.maxCandidates
	})

	items := make([]domain.RawItem, 0, len(candidates))
	for _, c := range candidates {
		meta, metaErr := s.fetchPageMeta(ctx, c.url)
		if metaErr != nil {
			// Enrichment is best-effort: keep the candidate with its
			// anchor text as title.
			items = append(items, domain.RawItem{Title: c.title, URL: c.url})
			continue
		}
		item := domain.RawItem{
			Title:       meta.Title,
			URL:         c.url,
			Summary:     meta.Description,
			Image:       meta.Image,
			Author:      meta.Author,
			PublishedAt: meta.Published,
		}
		if item.Title == "" {
			item.Title = c.title
		}
		items = append(items, item)
	}

	return &Result{Items: items, StatusCode: resp.StatusCode, Warnings: warnings}, nil
}

func (s *Service) get(ctx context.Context, rawURL string) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	resp, err := s.doGet(reqCtx, rawURL)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the body's lifetime to the timer so reads stay bounded too.
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (s *Service) doGet(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("build request: %v", err)}
	}
	// Some publishers block unidentified clients.
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Failure{Reason: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &Failure{StatusCode: resp.StatusCode, Reason: "unexpected status " + resp.Status}
	}
	return resp, nil
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
