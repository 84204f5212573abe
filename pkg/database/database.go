// Package database executes read-only queries against PostgreSQL.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/config"
	"github.com/sidv1711/slack-bot/pkg/logging"
)

// ErrNotSelect is returned for any statement that is not a SELECT.
var ErrNotSelect = errors.New("only SELECT queries are allowed")

// QueryResult holds the rows returned by a SELECT, in column order.
type QueryResult struct {
	SQL      string           `json:"query"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"data"`
	RowCount int              `json:"row_count"`
}

// Executor runs SELECT statements inside read-only transactions.
type Executor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// Open connects a pool using cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Executor, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("database url is not configured")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewExecutor(pool, cfg.QueryTimeout, logger), nil
}

// NewExecutor wraps an existing pool.
func NewExecutor(pool *pgxpool.Pool, timeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{pool: pool, timeout: timeout, logger: logging.OrNop(logger)}
}

// Pool exposes the underlying pool for stores sharing the connection.
func (e *Executor) Pool() *pgxpool.Pool {
	return e.pool
}

// Ping checks connectivity.
func (e *Executor) Ping(ctx context.Context) error {
	if e.pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	return e.pool.Ping(ctx)
}

// Close releases the pool.
func (e *Executor) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// ExecuteSelect runs sql with args and returns every row. Non-SELECT
// statements are refused before reaching the database.
func (e *Executor) ExecuteSelect(ctx context.Context, sql string, args ...any) (*QueryResult, error) {
	if !IsSelect(sql) {
		return nil, ErrNotSelect
	}
	if e.pool == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("query timeout after %v: %w", e.timeout, ctx.Err())
		}
		return nil, err
	}
	result, err := collect(rows)
	if err != nil {
		return nil, err
	}
	result.SQL = sql

	e.logger.Info("query executed",
		zap.String("sql", sql),
		zap.Int("rows", result.RowCount),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// IsSelect reports whether sql begins with SELECT, ignoring case and
// leading whitespace.
func IsSelect(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT")
}

func collect(rows pgx.Rows) (*QueryResult, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(result.Rows)+1, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = Normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows after %d: %w", len(result.Rows), err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// Normalize converts driver values into JSON-friendly ones: timestamps
// become RFC 3339 strings, UUIDs their canonical text, numerics float64 and
// JSON documents decoded values.
func Normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.UUID:
		if !t.Valid {
			return nil
		}
		return uuid.UUID(t.Bytes).String()
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []byte:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err == nil {
			return decoded
		}
		return string(t)
	default:
		return v
	}
}
