package reports

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidv1711/slack-bot/pkg/config"
)

func testConfig(base string) config.ReportsConfig {
	return config.ReportsConfig{
		BaseURL:     base,
		Origin:      "https://app.test",
		Token:       "secret",
		Timeout:     time.Second,
		Concurrency: 4,
		Retry:       config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 1, MaxBackoffMs: 2},
	}
}

func TestGenerateLinkHistoryID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sharedReportPath, r.URL.Path)
		assert.Equal(t, "t1", r.URL.Query().Get("testId"))
		assert.Equal(t, "e1", r.URL.Query().Get("executionId"))
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		assert.Equal(t, "Slack-Bot/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"status":"success","history_id":"h-9"}`)
	}))
	defer srv.Close()

	link, err := New(testConfig(srv.URL)).GenerateLink(context.Background(), "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "https://app.test/report/shared/h-9", link)
}

func TestGenerateLinkAlternateShapes(t *testing.T) {
	cases := map[string]string{
		`{"shareable_link":"https://x/share"}`: "https://x/share",
		`{"url":"https://x/url"}`:              "https://x/url",
		`{"status":"success"}`:                 "",
		`{"something":"else"}`:                 "",
	}
	for body, want := range cases {
		body, want := body, want
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			link, err := New(testConfig(srv.URL)).GenerateLink(context.Background(), "t", "e")
			require.NoError(t, err)
			assert.Equal(t, want, link)
		})
	}
}

func TestGenerateLinkRetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"url":"https://x/ok"}`)
	}))
	defer srv.Close()

	link, err := New(testConfig(srv.URL)).GenerateLink(context.Background(), "t", "e")
	require.NoError(t, err)
	assert.Equal(t, "https://x/ok", link)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerateLinkDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	link, err := New(testConfig(srv.URL)).GenerateLink(context.Background(), "t", "e")
	require.NoError(t, err)
	assert.Empty(t, link)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateLinkWithoutToken(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Token = ""
	c := New(cfg)
	assert.False(t, c.Enabled())

	link, err := c.GenerateLink(context.Background(), "t", "e")
	require.NoError(t, err)
	assert.Empty(t, link)

	links := c.GenerateLinks(context.Background(), []Execution{{ID: "a", TestID: "t"}, {ID: "b", TestID: "t"}})
	assert.Equal(t, map[string]string{"a": "", "b": ""}, links)
}

func TestGenerateLinksIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("executionId")
		switch id {
		case "slow":
			time.Sleep(20 * time.Millisecond)
			fmt.Fprintf(w, `{"status":"success","history_id":"%s"}`, id)
		case "broken", "broken-meta":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprintf(w, `{"status":"success","history_id":"%s"}`, id)
		}
	}))
	defer srv.Close()

	execs := []Execution{
		{ID: "slow", TestID: "t"},
		{ID: "fast", TestID: "t"},
		{ID: "broken", TestID: "t", Metadata: "12s env:prod"},
		{ID: "broken-meta", TestID: "t", Metadata: "https://bucket/meta.json"},
		{ID: "no-test"},
	}
	links := New(testConfig(srv.URL)).GenerateLinks(context.Background(), execs)

	assert.Equal(t, map[string]string{
		"slow":        "https://app.test/report/shared/slow",
		"fast":        "https://app.test/report/shared/fast",
		"broken":      "",
		"broken-meta": "https://bucket/meta.json",
		"no-test":     "",
	}, links)
}

func TestExecutionsFromRows(t *testing.T) {
	rows := []map[string]any{
		{"id": "abc", "test_uid": "t-1", "metadata": "https://m"},
		{"id": 42, "test_uid": "t-2", "metadata": map[string]any{"k": 1}},
	}
	assert.Equal(t, []Execution{
		{ID: "abc", TestID: "t-1", Metadata: "https://m"},
		{ID: "42", TestID: "t-2"},
	}, ExecutionsFromRows(rows))
}

func TestFormatLink(t *testing.T) {
	assert.Equal(t, "N/A", FormatLink("", "View"))
	assert.Equal(t, "<https://x|View>", FormatLink("https://x", "View"))
	assert.Equal(t, "<https://x|📊 Report>", FormatLink("https://x", ""))
}

func TestComputeBackoff(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, computeBackoff(200, 2000, 0))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(200, 2000, 1))
	assert.Equal(t, 2000*time.Millisecond, computeBackoff(200, 2000, 6))
	assert.Equal(t, 300*time.Millisecond, computeBackoff(300, 100, 3))
}

func TestSleepWithContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepWithContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepWithContext(context.Background(), 0))
}
