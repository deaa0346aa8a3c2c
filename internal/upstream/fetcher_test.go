package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mockMetrics struct {
	requests    map[string]int
	breakerOpen bool
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{requests: map[string]int{}}
}

func (m *mockMetrics) RecordUpstreamRequest(source, outcome string)         { m.requests[outcome]++ }
func (m *mockMetrics) RecordUpstreamLatency(source string, d time.Duration) {}
func (m *mockMetrics) RecordBreakerState(source string, open bool)          { m.breakerOpen = open }
func (m *mockMetrics) RecordItemsDropped(source string, count int)          {}
func (m *mockMetrics) RecordFavoriteAdded(kind string, created bool)        {}
func (m *mockMetrics) RecordFavoritesRemoved(count int)                     {}
func (m *mockMetrics) RecordHTTPStatus(statusCode int)                      {}

func newTestFetcher(srv *httptest.Server, m *mockMetrics, threshold uint32) *Fetcher {
	opts := Options{
		Source:           "test",
		HTTPClient:       srv.Client(),
		MaxBodySize:      1024,
		FailureThreshold: threshold,
		BreakerTimeout:   time.Minute,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if m != nil {
		opts.Metrics = m
	}
	return NewFetcher(opts)
}

func TestGetJSON_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "mediafav/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte(`{"results":[{"id":1,"title":"A"}]}`))
	}))
	defer srv.Close()

	m := newMockMetrics()
	f := newTestFetcher(srv, m, 5)

	var got struct {
		Results []struct {
			ID    int    `json:"id"`
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := f.GetJSON(context.Background(), srv.URL, &got); err != nil {
		t.Fatalf("GetJSON returned error: %v", err)
	}
	if len(got.Results) != 1 || got.Results[0].Title != "A" {
		t.Errorf("decoded = %+v", got)
	}
	if m.requests["success"] != 1 {
		t.Errorf("success count = %d, want 1", m.requests["success"])
	}
}

func TestGetJSON_NotFound_ReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(srv, nil, 5)

	var v map[string]any
	err := f.GetJSON(context.Background(), srv.URL, &v)
	if !IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestGetJSON_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pad":"` + strings.Repeat("x", 2048) + `"}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv, nil, 5)

	var v map[string]any
	if err := f.GetJSON(context.Background(), srv.URL, &v); !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("error = %v, want ErrResponseTooLarge", err)
	}
}

func TestGetJSON_InvalidJSON_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	m := newMockMetrics()
	f := newTestFetcher(srv, m, 5)

	var v map[string]any
	if err := f.GetJSON(context.Background(), srv.URL, &v); err == nil {
		t.Fatal("expected decode error, got nil")
	}
	if m.requests["failure"] != 1 {
		t.Errorf("failure count = %d, want 1", m.requests["failure"])
	}
}

func TestGetJSON_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := newMockMetrics()
	f := newTestFetcher(srv, m, 3)

	var v map[string]any
	for i := 0; i < 3; i++ {
		if err := f.GetJSON(context.Background(), srv.URL, &v); err == nil {
			t.Fatalf("call %d: expected error, got nil", i)
		}
	}

	err := f.GetJSON(context.Background(), srv.URL, &v)
	if !IsBreakerOpen(err) {
		t.Fatalf("error = %v, want breaker open", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
	if !m.breakerOpen {
		t.Error("breaker state should be recorded as open")
	}
	if m.requests["breaker_open"] != 1 {
		t.Errorf("breaker_open count = %d, want 1", m.requests["breaker_open"])
	}
}

func TestGetJSON_NotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(srv, nil, 2)

	var v map[string]any
	for i := 0; i < 5; i++ {
		if err := f.GetJSON(context.Background(), srv.URL, &v); !IsNotFound(err) {
			t.Fatalf("call %d: error = %v, want not found", i, err)
		}
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("server hits = %d, want 5", got)
	}
}

func TestGetJSON_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv, nil, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var v map[string]any
	if err := f.GetJSON(ctx, srv.URL, &v); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestIsBreakerSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"canceled", context.Canceled, true},
		{"404", &StatusError{StatusCode: 404}, true},
		{"429", &StatusError{StatusCode: 429}, false},
		{"500", &StatusError{StatusCode: 500}, false},
		{"network", errors.New("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBreakerSuccess(tt.err); got != tt.want {
				t.Errorf("isBreakerSuccess(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetJSON_NetworkError_DoesNotLeakAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	var logBuf bytes.Buffer
	f := NewFetcher(Options{
		Source:           "tmdb",
		HTTPClient:       &http.Client{Timeout: time.Second},
		MaxBodySize:      1024,
		FailureThreshold: 5,
		BreakerTimeout:   time.Minute,
		Logger:           slog.New(slog.NewJSONHandler(&logBuf, nil)),
	})

	var out map[string]any
	err := f.GetJSON(context.Background(), baseURL+"/3/search/movie?api_key=SECRET-KEY-123&query=matrix", &out)
	if err == nil {
		t.Fatal("GetJSON should fail against a closed server")
	}
	if strings.Contains(err.Error(), "SECRET-KEY-123") {
		t.Errorf("error contains the API key: %v", err)
	}
	if !strings.Contains(err.Error(), "api_key=REDACTED") {
		t.Errorf("error should keep a redacted api_key marker: %v", err)
	}
	if strings.Contains(logBuf.String(), "SECRET-KEY-123") {
		t.Errorf("log contains the API key: %s", logBuf.String())
	}

	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		t.Errorf("err should still wrap *url.Error: %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"masks api_key", "https://api.themoviedb.org/3/search/movie?api_key=abc&query=x", "https://api.themoviedb.org/3/search/movie?api_key=REDACTED&query=x"},
		{"no sensitive params", "https://openlibrary.org/search.json?q=dune&limit=10", "https://openlibrary.org/search.json?q=dune&limit=10"},
		{"no query", "https://openlibrary.org/works/OL1W.json", "https://openlibrary.org/works/OL1W.json"},
		{"unparsable drops query", "http://[::1%zz/x?api_key=abc", "http://[::1%zz/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactURL(tt.in); got != tt.want {
				t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
