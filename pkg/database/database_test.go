package database

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidv1711/slack-bot/pkg/config"
)

func TestExecuteSelectRefusesWrites(t *testing.T) {
	e := NewExecutor(nil, time.Second, nil)
	for _, sql := range []string{
		"DELETE FROM test_history;",
		"  update test_history set success = true;",
		"",
		"WITH x AS (DELETE FROM test_history RETURNING *) SELECT * FROM x;",
	} {
		_, err := e.ExecuteSelect(context.Background(), sql)
		require.Error(t, err, sql)
		assert.True(t, errors.Is(err, ErrNotSelect), sql)
	}
}

func TestExecuteSelectWithoutPool(t *testing.T) {
	e := NewExecutor(nil, time.Second, nil)
	_, err := e.ExecuteSelect(context.Background(), "SELECT 1;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
	assert.Error(t, e.Ping(context.Background()))
	e.Close()
}

func TestIsSelect(t *testing.T) {
	assert.True(t, IsSelect("\n\tselect * from test_history"))
	assert.True(t, IsSelect("SELECT COUNT(*) FROM test_history;"))
	assert.False(t, IsSelect("EXPLAIN SELECT 1"))
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-15T10:30:00Z", Normalize(ts))

	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	assert.Equal(t, "12345678-9abc-def0-1234-56789abcdef0", Normalize(id))
	assert.Equal(t, "12345678-9abc-def0-1234-56789abcdef0", Normalize(pgtype.UUID{Bytes: id, Valid: true}))
	assert.Nil(t, Normalize(pgtype.UUID{}))

	num := pgtype.Numeric{Int: big.NewInt(125), Exp: -1, Valid: true}
	assert.Equal(t, 12.5, Normalize(num))

	assert.Equal(t, map[string]any{"environment": "staging"}, Normalize([]byte(`{"environment":"staging"}`)))
	assert.Equal(t, "not json", Normalize([]byte("not json")))
	assert.Equal(t, int64(3), Normalize(int64(3)))
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{}, nil)
	require.Error(t, err)
}
