package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is the best-effort metadata extracted from one article page.
type PageMeta struct {
	Title       string
	Description string
	Image       string
	Author      string
	Published   *time.Time
}

// fetchPageMeta downloads one candidate page and pulls Open Graph / meta
// tag metadata out of it.
func (s *Service) fetchPageMeta(ctx context.Context, pageURL string) (*PageMeta, error) {
	resp, err := s.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	meta := &PageMeta{
		Title:       firstNonEmpty(metaContent(doc, "og:title"), metaContent(doc, "twitter:title"), strings.TrimSpace(doc.Find("title").First().Text())),
		Description: firstNonEmpty(metaContent(doc, "og:description"), metaNameContent(doc, "description")),
		Image:       firstNonEmpty(metaContent(doc, "og:image"), metaContent(doc, "twitter:image")),
		Author:      firstNonEmpty(metaNameContent(doc, "author"), metaContent(doc, "article:author")),
	}

	if published := metaContent(doc, "article:published_time"); published != "" {
		if t, err := time.Parse(time.RFC3339, published); err == nil {
			meta.Published = &t
		}
	}

	return meta, nil
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func metaNameContent(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
