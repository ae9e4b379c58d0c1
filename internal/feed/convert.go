package feed

import (
	"errors"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/feedpress/internal/storage"
)

// MaxSummaryLength bounds how much of an item's description is kept as the
// stored summary. Some feeds stuff their entire content into the summary
// field; past this limit the summary is dropped rather than truncated.
const MaxSummaryLength = 1000

var errNoContent = errors.New("entry has neither content nor summary")

// entryFromItem converts one parsed feed item into its storage shape.
// A conversion failure only affects this item; siblings keep going.
func entryFromItem(feedID int64, item *gofeed.Item) (*storage.Entry, error) {
	content := item.Content
	if content == "" {
		content = item.Description
	}
	if content == "" {
		return nil, errNoContent
	}

	entry := &storage.Entry{
		FeedID:  feedID,
		Title:   item.Title,
		Content: content,
	}

	if item.GUID != "" {
		guid := item.GUID
		entry.FeedEntryID = &guid
	}

	if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC().Format(time.RFC3339)
		entry.Updated = &updated
	} else if item.Updated != "" {
		updated := item.Updated
		entry.Updated = &updated
	}

	if names := authorNames(item); len(names) > 0 {
		authors := strings.Join(names, ",")
		entry.Authors = &authors
	}

	if len(item.Description) < MaxSummaryLength {
		entry.Summary = item.Description
	}

	return entry, nil
}

func authorNames(item *gofeed.Item) []string {
	names := make([]string, 0, len(item.Authors))
	for _, author := range item.Authors {
		if author != nil && author.Name != "" {
			names = append(names, author.Name)
		}
	}
	return names
}
