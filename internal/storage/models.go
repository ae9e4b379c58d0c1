package storage

import (
	"time"
)

// FeedStats is the durable fetch state for one tracked feed. The validator
// tokens are opaque strings handed back by the server; they are stored and
// replayed verbatim, never parsed. Optional columns are pointers so that
// "absent" stays distinguishable from "empty".
type FeedStats struct {
	ID           int64
	URL          string
	LastModified *string
	ETag         *string
	LastFetched  *time.Time
}

// Entry is one feed item as ingested. FeedEntryID is the feed-native item
// identity and may be nil when the source feed omits one.
type Entry struct {
	FeedID      int64
	FeedEntryID *string
	Title       string
	Updated     *string
	Authors     *string
	Summary     string
	Content     string
}
