package search

import (
	"path/filepath"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := Open(filepath.Join(t.TempDir(), "index.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestIndexAndSearch(t *testing.T) {
	engine := setupEngine(t)

	err := engine.IndexItems("tech-blog", []*gofeed.Item{
		{GUID: "p1", Title: "Understanding goroutines", Description: "concurrency in Go", Content: "<p>long text</p>"},
		{GUID: "p2", Title: "Baking sourdough", Description: "bread at home"},
	})
	require.NoError(t, err)

	results, err := engine.Search("goroutines", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tech-blog", results[0].Feed)
	assert.Equal(t, "Understanding goroutines", results[0].Title)
	assert.Equal(t, "concurrency in Go", results[0].Summary)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestReindexReplacesDocument(t *testing.T) {
	engine := setupEngine(t)

	item := &gofeed.Item{GUID: "p1", Title: "First title", Description: "v1"}
	require.NoError(t, engine.IndexItems("blog", []*gofeed.Item{item}))

	item.Title = "Second title"
	require.NoError(t, engine.IndexItems("blog", []*gofeed.Item{item}))

	results, err := engine.Search("title", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Second title", results[0].Title)
}

func TestSearchEmptyQuery(t *testing.T) {
	engine := setupEngine(t)

	results, err := engine.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOpenExistingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bleve")

	engine, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, engine.IndexItems("blog", []*gofeed.Item{
		{GUID: "p1", Title: "Persistent entry", Description: "survives reopen"},
	}))
	require.NoError(t, engine.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search("persistent", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
