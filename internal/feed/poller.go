package feed

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/feedpress/internal/debuglog"
	"github.com/pders01/feedpress/internal/storage"
)

const maxConcurrentPolls = 5

// Source is everything the poller needs to know about one configured feed.
type Source struct {
	Name        string
	URL         string
	DownloadDir string
	Interval    time.Duration
	Conditional Conditional
}

// Update is a feed that came back with fresh data during a poll cycle,
// ready for downstream conversion.
type Update struct {
	Source Source
	Feed   *gofeed.Feed
}

// Poller drives the per-feed poll sequence: consult the store, fetch
// conditionally, persist what came back. It is constructed once and shares
// its HTTP client and store handle across all polls.
type Poller struct {
	store   *storage.Store
	fetcher *Fetcher
	parser  *gofeed.Parser

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPoller(store *storage.Store, fetcher *Fetcher) *Poller {
	return &Poller{
		store:   store,
		fetcher: fetcher,
		parser:  gofeed.NewParser(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Poll runs one poll cycle for a single feed. It returns the parsed feed
// when the server handed back fresh data and nil when the poll was skipped
// (not yet due, not modified, or rate limited). Polls for distinct feeds
// may run concurrently; polls for the same feed are serialized here.
func (p *Poller) Poll(ctx context.Context, src Source) (*gofeed.Feed, error) {
	lock := p.feedLock(src.URL)
	lock.Lock()
	defer lock.Unlock()

	// Every poll re-reads fetch state fresh from the store; nothing is
	// cached across invocations.
	stats, err := p.store.FeedStats(src.URL)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats, err = p.store.CreateFeedStats(src.URL)
		if err != nil {
			return nil, err
		}
	}

	// A feed with no recorded successful fetch is always due.
	if stats.LastFetched != nil {
		if since := time.Since(*stats.LastFetched); since < src.Interval {
			debuglog.Debugf("feed %s: fetched %s ago, not due yet", src.Name, since.Round(time.Second))
			return nil, nil
		}
	}

	validators := Validators{LastModified: stats.LastModified, ETag: stats.ETag}
	result, err := p.fetcher.Fetch(ctx, src.URL, validators, src.Conditional)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.URL, err)
	}

	switch result.Status {
	case StatusRateLimited:
		// Deliberately no cache mutation: recording a 429 as a fetch
		// would let the due-ness gate mask the unresolved rate limit.
		debuglog.Warnf("feed %s: rate limited (429), will retry next eligible cycle", src.Name)
		return nil, nil

	case StatusNotModified:
		adoptValidators(stats, result)
		stats.LastFetched = timePtr(time.Now())
		if err := p.store.SaveFeedStats(stats); err != nil {
			return nil, err
		}
		debuglog.Debugf("feed %s: not modified", src.Name)
		return nil, nil
	}

	parsed, err := p.parser.Parse(bytes.NewReader(result.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", src.Name, err)
	}

	for _, item := range parsed.Items {
		entry, convertErr := entryFromItem(stats.ID, item)
		if convertErr != nil {
			debuglog.Warnf("feed %s: skipping entry %q: %v", src.Name, item.Title, convertErr)
			continue
		}
		if upsertErr := p.store.UpsertEntry(entry); upsertErr != nil {
			debuglog.Errorf("feed %s: persisting entry %q: %v", src.Name, entry.Title, upsertErr)
		}
	}

	adoptValidators(stats, result)
	stats.LastFetched = timePtr(time.Now())
	if err := p.store.SaveFeedStats(stats); err != nil {
		// The fetch succeeded but the cache update is not durable, so
		// the poll as a whole counts as failed.
		return nil, err
	}

	return parsed, nil
}

// PollAll polls every source with bounded concurrency. Per-feed failures
// are logged and never abort sibling feeds; only feeds with fresh data
// appear in the returned updates.
func (p *Poller) PollAll(ctx context.Context, sources []Source) []Update {
	var (
		mu      sync.Mutex
		updates []Update
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPolls)

	for _, src := range sources {
		g.Go(func() error {
			parsed, err := p.Poll(ctx, src)
			if err != nil {
				debuglog.Errorf("feed %s: poll failed: %v", src.Name, err)
				return nil
			}
			if parsed == nil {
				return nil
			}
			mu.Lock()
			updates = append(updates, Update{Source: src, Feed: parsed})
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; the wait is for completion only.
	_ = g.Wait()

	return updates
}

func (p *Poller) feedLock(url string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[url]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[url] = lock
	}
	return lock
}

// adoptValidators takes over whatever validator tokens the response
// carried. Servers may rotate them even on a 304, so this runs for every
// non-rate-limited outcome. Tokens the server omitted keep their stored
// value.
func adoptValidators(stats *storage.FeedStats, result *Result) {
	if result.LastModified != nil {
		stats.LastModified = result.LastModified
	}
	if result.ETag != nil {
		stats.ETag = result.ETag
	}
}

func timePtr(t time.Time) *time.Time { return &t }
