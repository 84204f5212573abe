// Package reports resolves shareable report links for test executions.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/config"
)

const sharedReportPath = "/api/v1/report/async-run/shared-report"

// Execution identifies one test run.
type Execution struct {
	ID       string
	TestID   string
	Metadata string
}

// ExecutionsFromRows extracts executions from test_history rows.
func ExecutionsFromRows(rows []map[string]any) []Execution {
	out := make([]Execution, 0, len(rows))
	for _, row := range rows {
		exec := Execution{
			ID:     fieldString(row["id"]),
			TestID: fieldString(row["test_uid"]),
		}
		if s, ok := row["metadata"].(string); ok {
			exec.Metadata = s
		}
		out = append(out, exec)
	}
	return out
}

func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Client talks to the report service.
type Client struct {
	baseURL     string
	origin      string
	token       string
	concurrency int
	retry       config.RetryConfig
	http        *http.Client
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a report client from cfg.
func New(cfg config.ReportsConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	origin := cfg.Origin
	if origin == "" {
		origin = "https://app.example.com"
	}
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		origin:      strings.TrimRight(origin, "/"),
		token:       cfg.Token,
		concurrency: concurrency,
		retry:       cfg.Retry,
		http:        &http.Client{Timeout: timeout},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an API token is configured.
func (c *Client) Enabled() bool {
	return c.token != ""
}

type sharedReport struct {
	Status        string `json:"status"`
	HistoryID     string `json:"history_id"`
	ShareableLink string `json:"shareable_link"`
	URL           string `json:"url"`
}

// GenerateLink requests a shareable link for one execution. It returns ""
// with a nil error when the service has no link to offer.
func (c *Client) GenerateLink(ctx context.Context, testID, executionID string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	maxRetries := c.retry.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		link, err := c.fetch(ctx, testID, executionID)
		if err == nil {
			return link, nil
		}
		lastErr = err
		if !adapter.IsTransient(err) || attempt == maxRetries {
			break
		}
		backoff := computeBackoff(c.retry.BaseBackoffMs, c.retry.MaxBackoffMs, attempt)
		c.logger.Debug("retrying report request",
			zap.String("execution_id", executionID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff))
		if err := sleepWithContext(ctx, backoff); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) fetch(ctx context.Context, testID, executionID string) (string, error) {
	q := url.Values{}
	q.Set("testId", testID)
	q.Set("token", c.token)
	q.Set("executionId", executionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+sharedReportPath+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("User-Agent", "Slack-Bot/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &adapter.AdapterError{Temporary: adapter.IsTransient(err), Err: fmt.Errorf("report request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &adapter.AdapterError{Temporary: true, Err: fmt.Errorf("read report response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Error("report service rejected token")
		return "", nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warn("test execution not found", zap.String("test_id", testID), zap.String("execution_id", executionID))
		return "", nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		c.logger.Error("report request rejected", zap.String("body", string(body)))
		return "", nil
	default:
		return "", &adapter.AdapterError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("report service status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var report sharedReport
	if err := json.Unmarshal(body, &report); err != nil {
		return "", fmt.Errorf("decode report response: %w", err)
	}
	switch {
	case report.Status == "success":
		if report.HistoryID == "" {
			c.logger.Warn("report response missing history_id", zap.String("test_id", testID))
			return "", nil
		}
		return c.origin + "/report/shared/" + report.HistoryID, nil
	case report.ShareableLink != "":
		return report.ShareableLink, nil
	case report.URL != "":
		return report.URL, nil
	}
	c.logger.Warn("unexpected report response", zap.String("body", string(body)))
	return "", nil
}

// GenerateLinks resolves links for every execution concurrently. The result
// is keyed by execution id and holds "" where no link could be produced. A
// failed request falls back to the execution's metadata URL and never
// affects the others.
func (c *Client) GenerateLinks(ctx context.Context, executions []Execution) map[string]string {
	links := make(map[string]string, len(executions))
	for _, exec := range executions {
		if exec.ID != "" {
			links[exec.ID] = ""
		}
	}
	if !c.Enabled() {
		return links
	}

	results := make([]string, len(executions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, exec := range executions {
		if exec.ID == "" || exec.TestID == "" {
			continue
		}
		g.Go(func() error {
			link, err := c.GenerateLink(gctx, exec.TestID, exec.ID)
			if err != nil {
				c.logger.Warn("report link failed",
					zap.String("execution_id", exec.ID), zap.Error(err))
			}
			if link == "" {
				link = FallbackLink(exec)
			}
			results[i] = link
			return nil
		})
	}
	_ = g.Wait()

	for i, exec := range executions {
		if exec.ID != "" && results[i] != "" {
			links[exec.ID] = results[i]
		}
	}
	return links
}

// FallbackLink uses the execution metadata when it is already a URL.
func FallbackLink(exec Execution) string {
	m := strings.TrimSpace(exec.Metadata)
	if strings.HasPrefix(m, "http://") || strings.HasPrefix(m, "https://") {
		return m
	}
	return ""
}

// FormatLink renders link as a Slack link labelled text, or "N/A".
func FormatLink(link, text string) string {
	if link == "" {
		return "N/A"
	}
	if text == "" {
		text = "📊 Report"
	}
	return "<" + link + "|" + text + ">"
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	if maxMs < baseMs {
		maxMs = baseMs
	}
	limit := time.Duration(maxMs) * time.Millisecond
	backoff := time.Duration(baseMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
