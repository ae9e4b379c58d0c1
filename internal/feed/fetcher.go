package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Conditional selects which validator header a feed's requests carry. It is
// decided once per feed at configuration time.
type Conditional int

const (
	ConditionalLastModified Conditional = iota
	ConditionalETag
)

// ParseConditional maps the config-file spelling to a Conditional.
// Unknown or empty values fall back to If-Modified-Since, the more widely
// supported of the two.
func ParseConditional(s string) (Conditional, error) {
	switch s {
	case "", "last-modified":
		return ConditionalLastModified, nil
	case "etag":
		return ConditionalETag, nil
	default:
		return ConditionalLastModified, fmt.Errorf("unknown conditional kind %q (want \"etag\" or \"last-modified\")", s)
	}
}

// Status classifies a fetch response.
type Status int

const (
	StatusFresh Status = iota
	StatusNotModified
	StatusRateLimited
)

// Validators is a feed's current pair of opaque cache tokens.
type Validators struct {
	LastModified *string
	ETag         *string
}

// Result is the outcome of one conditional fetch. Body is only set for
// StatusFresh. LastModified/ETag carry whatever validators the server
// returned, on any status; servers rotate ETags independently of content
// changes, so a 304 can still refresh them.
type Result struct {
	Status       Status
	Body         []byte
	LastModified *string
	ETag         *string
}

type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher builds a fetcher with a bounded request timeout. An unbounded
// fetch can wedge a whole poll cycle behind one dead server.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// Fetch issues a single conditional GET for feedURL. The configured kind
// picks which validator header to send; if that validator is absent the
// request goes out unconditionally. Statuses 304 and 429 get distinguished
// handling, any other status below 400 is fresh data, and everything else
// is a transport error. Retrying is the caller's concern.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, validators Validators, kind Conditional) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	switch kind {
	case ConditionalETag:
		if validators.ETag != nil {
			req.Header.Set("If-None-Match", *validators.ETag)
		}
	case ConditionalLastModified:
		if validators.LastModified != nil {
			req.Header.Set("If-Modified-Since", *validators.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	result := &Result{}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		result.LastModified = &lastModified
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		result.ETag = &etag
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		result.Status = StatusNotModified
	case resp.StatusCode == http.StatusTooManyRequests:
		result.Status = StatusRateLimited
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	default:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		result.Status = StatusFresh
		result.Body = body
	}

	return result, nil
}
