package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryFromItem(t *testing.T) {
	updated := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	item := &gofeed.Item{
		GUID:          "post-1",
		Title:         "A post",
		Description:   "short summary",
		Content:       "<p>body</p>",
		UpdatedParsed: &updated,
		Authors: []*gofeed.Person{
			{Name: "Jane Doe"},
			{Name: "John Doe"},
		},
	}

	entry, err := entryFromItem(7, item)
	require.NoError(t, err)

	assert.Equal(t, int64(7), entry.FeedID)
	require.NotNil(t, entry.FeedEntryID)
	assert.Equal(t, "post-1", *entry.FeedEntryID)
	assert.Equal(t, "A post", entry.Title)
	require.NotNil(t, entry.Updated)
	assert.Equal(t, "2025-06-01T10:00:00Z", *entry.Updated)
	require.NotNil(t, entry.Authors)
	assert.Equal(t, "Jane Doe,John Doe", *entry.Authors)
	assert.Equal(t, "short summary", entry.Summary)
	assert.Equal(t, "<p>body</p>", entry.Content)
}

func TestEntryFromItemContentFallsBackToDescription(t *testing.T) {
	entry, err := entryFromItem(1, &gofeed.Item{
		Title:       "Summary only",
		Description: "<p>the summary is all there is</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>the summary is all there is</p>", entry.Content)
}

func TestEntryFromItemNoContentFails(t *testing.T) {
	_, err := entryFromItem(1, &gofeed.Item{Title: "empty"})
	assert.ErrorIs(t, err, errNoContent)
}

func TestEntryFromItemOversizedSummaryDropped(t *testing.T) {
	entry, err := entryFromItem(1, &gofeed.Item{
		Title:       "stuffed",
		Description: strings.Repeat("x", MaxSummaryLength+1),
	})
	require.NoError(t, err)

	// The full text still lands in content, but the summary is dropped
	// rather than truncated mid-sentence.
	assert.Empty(t, entry.Summary)
	assert.NotEmpty(t, entry.Content)
}

func TestEntryFromItemOptionalFieldsAbsent(t *testing.T) {
	entry, err := entryFromItem(1, &gofeed.Item{
		Title:   "bare",
		Content: "<p>body</p>",
	})
	require.NoError(t, err)

	assert.Nil(t, entry.FeedEntryID)
	assert.Nil(t, entry.Updated)
	assert.Nil(t, entry.Authors)
	assert.Empty(t, entry.Summary)
}
