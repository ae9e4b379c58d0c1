package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseConditional(t *testing.T) {
	tests := []struct {
		in      string
		want    Conditional
		wantErr bool
	}{
		{"", ConditionalLastModified, false},
		{"last-modified", ConditionalLastModified, false},
		{"etag", ConditionalETag, false},
		{"if-range", ConditionalLastModified, true},
	}

	for _, tt := range tests {
		got, err := ParseConditional(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseConditional(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseConditional(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFetcher_Fetch(t *testing.T) {
	etag := `"abc123"`
	lastModified := "Wed, 01 Jan 2025 00:00:00 GMT"

	tests := []struct {
		name           string
		validators     Validators
		kind           Conditional
		serverResponse func(t *testing.T, w http.ResponseWriter, r *http.Request)
		wantStatus     Status
		wantBody       string
		wantErr        bool
	}{
		{
			name:       "fresh data with new validators",
			validators: Validators{},
			kind:       ConditionalLastModified,
			serverResponse: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				if ua := r.Header.Get("User-Agent"); ua != "feedpress-test/1.0" {
					t.Errorf("unexpected User-Agent %q", ua)
				}
				if r.Header.Get("If-Modified-Since") != "" {
					t.Error("expected unconditional request when no validator is stored")
				}
				w.Header().Set("ETag", `"abc123"`)
				w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("<rss></rss>"))
			},
			wantStatus: StatusFresh,
			wantBody:   "<rss></rss>",
		},
		{
			name:       "etag kind sends If-None-Match",
			validators: Validators{ETag: &etag},
			kind:       ConditionalETag,
			serverResponse: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("If-None-Match") != `"abc123"` {
					t.Errorf("expected If-None-Match, got %q", r.Header.Get("If-None-Match"))
				}
				if r.Header.Get("If-Modified-Since") != "" {
					t.Error("etag kind must not send If-Modified-Since")
				}
				w.WriteHeader(http.StatusNotModified)
			},
			wantStatus: StatusNotModified,
		},
		{
			name:       "last-modified kind sends If-Modified-Since",
			validators: Validators{LastModified: &lastModified},
			kind:       ConditionalLastModified,
			serverResponse: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("If-Modified-Since") != "Wed, 01 Jan 2025 00:00:00 GMT" {
					t.Errorf("expected If-Modified-Since, got %q", r.Header.Get("If-Modified-Since"))
				}
				if r.Header.Get("If-None-Match") != "" {
					t.Error("last-modified kind must not send If-None-Match")
				}
				w.WriteHeader(http.StatusNotModified)
			},
			wantStatus: StatusNotModified,
		},
		{
			name:       "etag kind with only a last-modified token goes unconditional",
			validators: Validators{LastModified: &lastModified},
			kind:       ConditionalETag,
			serverResponse: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
					t.Error("expected unconditional request")
				}
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("<rss></rss>"))
			},
			wantStatus: StatusFresh,
			wantBody:   "<rss></rss>",
		},
		{
			name: "rate limited",
			kind: ConditionalLastModified,
			serverResponse: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantStatus: StatusRateLimited,
		},
		{
			name: "server error is a transport failure",
			kind: ConditionalLastModified,
			serverResponse: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
		{
			name: "not found is a transport failure",
			kind: ConditionalLastModified,
			serverResponse: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.serverResponse(t, w, r)
			}))
			defer server.Close()

			fetcher := NewFetcher(5*time.Second, "feedpress-test/1.0")
			result, err := fetcher.Fetch(context.Background(), server.URL, tt.validators, tt.kind)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("status = %v, want %v", result.Status, tt.wantStatus)
			}
			if string(result.Body) != tt.wantBody {
				t.Errorf("body = %q, want %q", result.Body, tt.wantBody)
			}
		})
	}
}

func TestFetcher_CapturesValidatorsOn304(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"rotated"`)
		w.Header().Set("Last-Modified", "Thu, 02 Jan 2025 00:00:00 GMT")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	etag := `"stale"`
	fetcher := NewFetcher(5*time.Second, "feedpress-test/1.0")
	result, err := fetcher.Fetch(context.Background(), server.URL, Validators{ETag: &etag}, ConditionalETag)
	if err != nil {
		t.Fatal(err)
	}

	if result.ETag == nil || *result.ETag != `"rotated"` {
		t.Errorf("expected rotated ETag to be captured, got %v", result.ETag)
	}
	if result.LastModified == nil || *result.LastModified != "Thu, 02 Jan 2025 00:00:00 GMT" {
		t.Errorf("expected Last-Modified to be captured, got %v", result.LastModified)
	}
}

func TestFetcher_Timeout(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	fetcher := NewFetcher(50*time.Millisecond, "feedpress-test/1.0")
	_, err := fetcher.Fetch(context.Background(), server.URL, Validators{}, ConditionalLastModified)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
