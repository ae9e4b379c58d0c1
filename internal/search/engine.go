// Package search maintains a bleve full-text index over ingested feed
// entries. Indexing is best-effort: a broken index degrades the search
// command but never fails a poll.
package search

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/mmcdole/gofeed"
)

// Result is one search hit.
type Result struct {
	Feed    string
	Title   string
	Summary string
	Score   float64
}

type Engine struct {
	idx bleve.Index
}

// Open opens the index at indexPath, creating it if it doesn't exist yet.
func Open(indexPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating search index at %s: %w", indexPath, err)
		}
	}

	return &Engine{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true

	summary := bleve.NewTextFieldMapping()
	summary.Analyzer = standard.Name
	summary.Store = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false

	feedName := bleve.NewTextFieldMapping()
	feedName.Analyzer = standard.Name
	feedName.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("summary", summary)
	dm.AddFieldMappingsAt("content", content)
	dm.AddFieldMappingsAt("feed", feedName)

	im.DefaultMapping = dm
	return im
}

// IndexItems indexes one fresh feed's items in a single batch. Items
// without a usable identity are keyed by title, so re-indexing an edited
// entry replaces its document instead of duplicating it.
func (e *Engine) IndexItems(feedName string, items []*gofeed.Item) error {
	batch := e.idx.NewBatch()
	for _, item := range items {
		id := item.GUID
		if id == "" {
			id = item.Title
		}
		if id == "" {
			continue
		}
		if err := batch.Index(feedName+":"+id, map[string]any{
			"feed":    feedName,
			"title":   item.Title,
			"summary": item.Description,
			"content": item.Content,
		}); err != nil {
			return err
		}
	}
	return e.idx.Batch(batch)
}

// Search runs a query-string search and returns up to limit hits.
func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"feed", "title", "summary"}

	res, err := e.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := &Result{Score: hit.Score}
		if v, ok := hit.Fields["feed"].(string); ok {
			r.Feed = v
		}
		if v, ok := hit.Fields["title"].(string); ok {
			r.Title = v
		}
		if v, ok := hit.Fields["summary"].(string); ok {
			r.Summary = v
		}
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) Close() error {
	return e.idx.Close()
}
