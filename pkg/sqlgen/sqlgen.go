// Package sqlgen turns natural language questions about test runs into a
// safety-checked SELECT, executes it and renders the rows.
package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/database"
	"github.com/sidv1711/slack-bot/pkg/format"
	"github.com/sidv1711/slack-bot/pkg/service"
)

// Name is the capability name used for routing.
const Name = "nl2sql"

// DefaultTable is the only table generated queries may read.
const DefaultTable = "test_history"

const description = "converting natural language to SQL database queries and executing them"

const noExplanation = "No explanation available"

var nonDatabaseKeywords = []string{
	"write code", "generate function", "create script", "program",
	"hello", "hi", "how are you", "weather", "joke",
}

// Executor runs a SELECT and returns its rows.
type Executor interface {
	ExecuteSelect(ctx context.Context, sql string, args ...any) (*database.QueryResult, error)
}

// Handler implements service.Service for NL2SQL.
type Handler struct {
	llm    adapter.Adapter
	exec   Executor
	table  string
	prompt string
	logger *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTable overrides the queried table.
func WithTable(table string) Option {
	return func(h *Handler) {
		if strings.TrimSpace(table) != "" {
			h.table = strings.TrimSpace(table)
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates the handler. exec may be nil, in which case Process reports a
// query execution failure after generating the SQL.
func New(llm adapter.Adapter, exec Executor, opts ...Option) *Handler {
	h := &Handler{
		llm:    llm,
		exec:   exec,
		table:  DefaultTable,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.prompt = buildPrompt(h.table)
	return h
}

// Name implements service.Service.
func (h *Handler) Name() string { return Name }

// Description implements service.Service.
func (h *Handler) Description() string { return description }

// Table returns the table generated queries are restricted to.
func (h *Handler) Table() string { return h.table }

type sqlReply struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Convert generates a SELECT for input and checks it with ValidateSQL. The
// returned explanation is the one produced alongside the SQL.
func (h *Handler) Convert(ctx context.Context, input string) (string, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", service.ErrEmptyInput
	}

	resp, err := h.llm.Complete(ctx, &adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: adapter.RoleSystem, Content: h.prompt},
			{Role: adapter.RoleUser, Content: input},
		},
		Temperature: 0.1,
		MaxTokens:   200,
		JSON:        true,
	})
	if err != nil {
		return "", "", service.LLMError(err)
	}

	var reply sqlReply
	if err := service.DecodeReply(resp.Content, &reply); err != nil {
		return "", "", err
	}
	sql := strings.TrimSpace(reply.SQL)
	if sql == "" {
		return "", "", fmt.Errorf("%w: no SQL query in reply", service.ErrInvalidLLMOutput)
	}

	if err := ValidateSQL(sql, h.table); err != nil {
		h.logger.Warn("generated unsafe sql", zap.String("sql", sql), zap.Error(err))
		return "", "", err
	}

	h.logger.Info("generated sql", zap.String("sql", sql))
	return sql, reply.Explanation, nil
}

// Explain asks for a plain-language description of sql. Failures yield a
// placeholder rather than an error.
func (h *Handler) Explain(ctx context.Context, input, sql string) string {
	resp, err := h.llm.Complete(ctx, &adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: adapter.RoleSystem, Content: explainPrompt},
			{Role: adapter.RoleUser, Content: fmt.Sprintf("Original question: '%s'\nGenerated SQL: %s", input, sql)},
		},
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		h.logger.Warn("sql explanation failed", zap.Error(err))
		return noExplanation
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return noExplanation
	}
	return text
}

// Process implements service.Service.
func (h *Handler) Process(ctx context.Context, input string, _ service.RequestContext) *service.Result {
	input = strings.TrimSpace(input)
	payload := &service.SQLPayload{UserQuery: input}

	sql, _, err := h.Convert(ctx, input)
	if err != nil {
		return h.fail(payload, err)
	}
	payload.SQLQuery = sql

	if h.exec == nil {
		return h.fail(payload, fmt.Errorf("%w: no database configured", service.ErrQueryExecutionFailed))
	}
	rows, err := h.exec.ExecuteSelect(ctx, sql)
	if err != nil {
		h.logger.Error("query execution failed", zap.String("sql", sql), zap.Error(err))
		return h.fail(payload, fmt.Errorf("%w: %v", service.ErrQueryExecutionFailed, err))
	}

	payload.Results = rows.Rows
	payload.RowCount = rows.RowCount
	payload.FormattedTable = format.Table(rows.Rows, format.DefaultTableRows)
	payload.CompactTable = format.Compact(rows.Rows, format.DefaultCompactRows)
	payload.Blocks = format.Blocks(rows.Rows, format.DefaultBlockRows)
	payload.Explanation = h.Explain(ctx, input, sql)

	return &service.Result{
		Service:     Name,
		ServiceType: service.TypeDatabaseQuery,
		Success:     true,
		SQL:         payload,
	}
}

func (h *Handler) fail(payload *service.SQLPayload, err error) *service.Result {
	r := service.Failure(Name, service.TypeDatabaseQuery, err)
	if !errors.Is(err, service.ErrEmptyInput) {
		r.SQL = payload
	}
	return r
}

// Validate implements service.Service. Keywords match on word boundaries so
// that table names such as test_history are not mistaken for "hi".
func (h *Handler) Validate(input string) service.Verdict {
	if strings.TrimSpace(input) == "" {
		return service.Reject("Empty query cannot be converted to SQL",
			"Please provide a database query in natural language")
	}
	if kw, found := service.FirstWord(strings.ToLower(input), nonDatabaseKeywords); found {
		return service.Reject(fmt.Sprintf("Query appears to be about '%s', not database operations", kw),
			"Please ask about test data, test results, or database queries")
	}
	return service.Accept("Query appears suitable for SQL conversion and execution")
}

// Capabilities implements service.Service.
func (h *Handler) Capabilities() service.Capability {
	return service.Capability{
		Name:        Name,
		Description: "Convert natural language to SQL database queries and execute them against the " + h.table + " table",
		Features: []string{
			"SELECT queries only (read-only)",
			"Filtering by test_uid, status, execution_time",
			"Ordering and limiting results",
			"Time-based queries (last week, yesterday, etc.)",
			"Status filtering (failed, passed, etc.)",
			"Query execution with formatted table results",
			"SQL injection prevention",
			"Input validation",
			"Query explanation",
			"Results truncation for readability",
		},
		Examples: h.Examples(),
	}
}

// Examples implements service.Service.
func (h *Handler) Examples() []service.Example {
	return []service.Example{
		{Input: "Show me the last 5 test runs for test ABC", Output: "Executes SQL and returns formatted table with test results"},
		{Input: "List all failed test runs in the past week", Output: "Returns table of failed tests from the last 7 days"},
		{Input: "Find tests that failed yesterday", Output: "Shows table of yesterday's failed test executions"},
		{Input: "Count how many tests passed today", Output: "Returns count and details of today's passed tests"},
	}
}
