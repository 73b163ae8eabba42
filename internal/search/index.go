// Package search maintains an in-memory full-text index over articles and
// resolves review-queue free-text queries to article IDs. The index is
// rebuilt from sqlite on startup, so losing it costs nothing durable.
package search

import (
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"newsdesk/internal/domain"
)

// Index wraps one bleve in-memory index of articles. Both language
// renditions of each field are indexed together, so a Persian or English
// query hits the same document.
type Index struct {
	mu  sync.RWMutex
	idx bleve.Index
}

// NewIndex builds an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = false
	title.IncludeTermVectors = true

	body := bleve.NewTextFieldMapping()
	body.Analyzer = standard.Name
	body.Store = false

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("excerpt", body)
	dm.AddFieldMappingsAt("content", body)
	dm.AddFieldMappingsAt("tags", body)

	im.DefaultMapping = dm
	return im
}

// IndexArticle adds or replaces one article document.
func (x *Index) IndexArticle(a *domain.Article) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Index(docID(a.ID), articleDoc(a))
}

// IndexBatch adds or replaces many articles in one batch.
func (x *Index) IndexBatch(articles []domain.Article) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	batch := x.idx.NewBatch()
	for i := range articles {
		if err := batch.Index(docID(articles[i].ID), articleDoc(&articles[i])); err != nil {
			return err
		}
	}
	return x.idx.Batch(batch)
}

// Remove drops one article from the index.
func (x *Index) Remove(id int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Delete(docID(id))
}

// Search resolves a free-text query to ranked article IDs. Queries shorter
// than two characters return nothing rather than matching everything.
func (x *Index) Search(query string, limit int) ([]int64, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var qs []bleveQuery.Query
	for _, tok := range strings.Fields(query) {
		qt := bleve.NewMatchQuery(tok)
		qt.SetField("title")
		qt.SetBoost(4.0)
		qs = append(qs, qt)

		qtp := bleve.NewPrefixQuery(strings.ToLower(tok))
		qtp.SetField("title")
		qtp.SetBoost(3.0)
		qs = append(qs, qtp)

		qe := bleve.NewMatchQuery(tok)
		qe.SetField("excerpt")
		qe.SetBoost(2.0)
		qs = append(qs, qe)

		qc := bleve.NewMatchQuery(tok)
		qc.SetField("content")
		qc.SetBoost(1.0)
		qs = append(qs, qc)

		qg := bleve.NewMatchQuery(tok)
		qg.SetField("tags")
		qg.SetBoost(2.5)
		qs = append(qs, qg)
	}
	if len(qs) == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)

	x.mu.RLock()
	res, err := x.idx.Search(req)
	x.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(strings.TrimPrefix(h.ID, "article:"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DocCount reports how many articles are indexed.
func (x *Index) DocCount() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.idx.DocCount()
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Close()
}

func articleDoc(a *domain.Article) map[string]any {
	return map[string]any{
		"title":   a.Title.FA + " " + a.Title.EN,
		"excerpt": a.Excerpt.FA + " " + a.Excerpt.EN,
		"content": a.Content.FA + " " + a.Content.EN,
		"tags":    strings.Join(append(append([]string{}, a.Tags...), a.Categories...), " "),
	}
}

func docID(id int64) string {
	return "article:" + strconv.FormatInt(id, 10)
}
