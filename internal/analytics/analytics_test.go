package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/seoloop/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestDateRange(t *testing.T) {
	start := time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)
	r := NewDateRange(start, 14)

	assert.Equal(t, "2026-03-01..2026-03-14", r.String())
	assert.Equal(t, 14, r.Days())
}

func TestMatchesRoute(t *testing.T) {
	tests := []struct {
		page  string
		route string
		want  bool
	}{
		{"https://acme.test/blog/post/", "/blog/post", true},
		{"https://acme.test/", "/", true},
		{"https://acme.test", "/", true},
		{"https://acme.test/Blog/Post?ref=x", "/blog/post", true},
		{"/about", "/about", true},
		{"https://acme.test/about-us", "/about", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesRoute(tt.page, tt.route), "%s vs %s", tt.page, tt.route)
	}
}

func TestTotalClicks(t *testing.T) {
	rows := []Row{
		{Keys: []string{"https://acme.test/a"}, Clicks: 10},
		{Keys: []string{"https://acme.test/a/"}, Clicks: 5},
		{Keys: []string{"https://acme.test/b"}, Clicks: 7},
	}
	assert.Equal(t, 15.0, TotalClicks(rows, "/a"))
	assert.Equal(t, 22.0, TotalClicks(rows, ""))
}

func TestSearchConsoleQuery(t *testing.T) {
	var mu sync.Mutex
	var got map[string]any
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[
			{"keys":["https://acme.test/a"],"clicks":12,"impressions":300,"ctr":0.04,"position":7.5},
			{"keys":["https://acme.test/b"],"clicks":3,"impressions":90,"ctr":0.033,"position":11}
		]}`))
	}))
	defer srv.Close()

	sc, err := NewSearchConsole(context.Background(), SearchConsoleConfig{
		RequestsPerMinute: 6000,
		Options: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)

	dates := NewDateRange(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 14)
	rows, err := sc.Query(context.Background(), "https://acme.test/", dates, DimensionPage)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "https://acme.test/a", rows[0].Key())
	assert.Equal(t, 12.0, rows[0].Clicks)
	assert.Equal(t, 7.5, rows[0].Position)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasSuffix(gotPath, "/searchAnalytics/query"), gotPath)
	assert.Equal(t, "2026-03-01", got["startDate"])
	assert.Equal(t, "2026-03-14", got["endDate"])
	assert.Equal(t, []any{"page"}, got["dimensions"])
}

func TestSearchConsoleQueryError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
	}))
	defer srv.Close()

	sc, err := NewSearchConsole(context.Background(), SearchConsoleConfig{
		RequestsPerMinute: 6000,
		Options: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)

	_, err = sc.Query(context.Background(), "sc-domain:acme.test", NewDateRange(time.Now(), 7), DimensionDate)
	var pe *PropertyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "sc-domain:acme.test", pe.Property)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "permission errors are not retried")
}

func TestSearchConsoleRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"rows":[{"keys":["2026-03-01"],"clicks":4}]}`))
	}))
	defer srv.Close()

	sc, err := NewSearchConsole(context.Background(), SearchConsoleConfig{
		RequestsPerMinute: 6000,
		Retry: retry.Policy{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		Options: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)

	rows, err := sc.Query(context.Background(), "sc-domain:acme.test", NewDateRange(time.Now(), 7), DimensionDate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 4.0, rows[0].Clicks)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(&googleapi.Error{Code: 503}))
	assert.True(t, isRetriable(&googleapi.Error{Code: 429}))
	assert.False(t, isRetriable(&googleapi.Error{Code: 403}))
	assert.False(t, isRetriable(&googleapi.Error{Code: 404, Message: "503 mentioned in text"}))
	assert.True(t, isRetriable(context.DeadlineExceeded))
}
