package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrEntryNotFound is returned when no entry matches the requested id.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrFeedVanished means a feed row could not be read back immediately
	// after inserting it. That indicates a logic bug rather than a
	// transient condition, so callers should fail the whole poll.
	ErrFeedVanished = errors.New("feed row missing after insert")
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	return open(path)
}

// OpenInMemory backs the store with an in-memory database. It behaves
// identically to a file-backed store and exists for tests, which shouldn't
// have to manage the lifecycle of a temp file.
func OpenInMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dsn, err)
	}

	// database/sql hands out one in-memory database per connection, so the
	// pool must be pinned to a single connection for both variants to share
	// semantics. The daemon is single-process anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database %s: %w", dsn, err)
	}

	return &Store{db: db}, nil
}

// Init creates both tables if they don't exist yet. It is safe to call on
// every startup; there is no separate migration step.
func (s *Store) Init() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY,
		feed_url TEXT NOT NULL UNIQUE,
		last_modified TEXT,
		etag TEXT,
		last_fetched TEXT
	)`); err != nil {
		return fmt.Errorf("creating feeds table: %w", err)
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY,
		feed_id INTEGER NOT NULL,
		feed_entry_id TEXT,
		title TEXT NOT NULL,
		updated TEXT,
		authors TEXT,
		summary TEXT NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY(feed_id) REFERENCES feeds(id),
		UNIQUE(feed_id, feed_entry_id)
	)`); err != nil {
		return fmt.Errorf("creating entries table: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// FeedStats looks up the fetch state for url. A feed that has never been
// polled yields (nil, nil); only infrastructure failures are errors.
func (s *Store) FeedStats(url string) (*FeedStats, error) {
	row := s.db.QueryRow(
		"SELECT id, last_modified, etag, last_fetched FROM feeds WHERE feed_url = ?", url)

	var (
		stats        = FeedStats{URL: url}
		lastModified sql.NullString
		etag         sql.NullString
		lastFetched  sql.NullString
	)
	err := row.Scan(&stats.ID, &lastModified, &etag, &lastFetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying feed %s: %w", url, err)
	}

	if lastModified.Valid {
		stats.LastModified = &lastModified.String
	}
	if etag.Valid {
		stats.ETag = &etag.String
	}
	if lastFetched.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastFetched.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt last_fetched for feed %s: %w", url, err)
		}
		stats.LastFetched = &t
	}

	return &stats, nil
}

// CreateFeedStats inserts a bare row for url and returns it re-read from
// storage, so the caller always sees the id the database actually assigned.
func (s *Store) CreateFeedStats(url string) (*FeedStats, error) {
	if _, err := s.db.Exec("INSERT INTO feeds (feed_url) VALUES (?)", url); err != nil {
		return nil, fmt.Errorf("inserting feed %s: %w", url, err)
	}

	stats, err := s.FeedStats(url)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, fmt.Errorf("feed %s: %w", url, ErrFeedVanished)
	}
	return stats, nil
}

// SaveFeedStats upserts the full row keyed by URL. Every column is written,
// including absent optionals, so a save can never leave stale values behind.
// The row id is preserved across upserts.
func (s *Store) SaveFeedStats(stats *FeedStats) error {
	var lastFetched any
	if stats.LastFetched != nil {
		lastFetched = stats.LastFetched.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.Exec(`INSERT INTO feeds (feed_url, last_modified, etag, last_fetched)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(feed_url) DO UPDATE SET
			last_modified = excluded.last_modified,
			etag = excluded.etag,
			last_fetched = excluded.last_fetched`,
		stats.URL, optional(stats.LastModified), optional(stats.ETag), lastFetched)
	if err != nil {
		return fmt.Errorf("saving feed %s: %w", stats.URL, err)
	}
	return nil
}

// UpsertEntry writes an entry, overwriting any previous row with the same
// (feed_id, feed_entry_id). Entries without a feed-native id always insert;
// there is nothing to key an overwrite on.
func (s *Store) UpsertEntry(entry *Entry) error {
	_, err := s.db.Exec(`INSERT INTO entries (feed_id, feed_entry_id, title, updated, authors, summary, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, feed_entry_id) DO UPDATE SET
			title = excluded.title,
			updated = excluded.updated,
			authors = excluded.authors,
			summary = excluded.summary,
			content = excluded.content`,
		entry.FeedID, optional(entry.FeedEntryID), entry.Title,
		optional(entry.Updated), optional(entry.Authors), entry.Summary, entry.Content)
	if err != nil {
		return fmt.Errorf("saving entry %q: %w", entry.Title, err)
	}
	return nil
}

// Entry fetches a single entry by its feed-native id.
func (s *Store) Entry(feedEntryID string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT feed_id, feed_entry_id, title, updated, authors, summary, content
		FROM entries WHERE feed_entry_id = ?`, feedEntryID)

	var (
		entry     Entry
		feedEntry sql.NullString
		updated   sql.NullString
		authors   sql.NullString
	)
	err := row.Scan(&entry.FeedID, &feedEntry, &entry.Title, &updated, &authors,
		&entry.Summary, &entry.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", feedEntryID, ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying entry %s: %w", feedEntryID, err)
	}

	if feedEntry.Valid {
		entry.FeedEntryID = &feedEntry.String
	}
	if updated.Valid {
		entry.Updated = &updated.String
	}
	if authors.Valid {
		entry.Authors = &authors.String
	}

	return &entry, nil
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
