package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const mappingColumns = `slack_user_id, slack_team_id, COALESCE(slack_email, ''), provider_user_id,
	COALESCE(provider_email, ''), created_at, updated_at`

// PostgresStore keeps mappings in the user_mappings table. The table is
// expected to exist with a unique key on (slack_user_id, slack_team_id).
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, slackUserID, teamID string) (*UserMapping, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM user_mappings WHERE slack_user_id = $1 AND slack_team_id = $2`,
		slackUserID, teamID)
	return scanMapping(row)
}

func scanMapping(row pgx.Row) (*UserMapping, error) {
	var m UserMapping
	err := row.Scan(&m.SlackUserID, &m.SlackTeamID, &m.SlackEmail, &m.ProviderUserID,
		&m.ProviderEmail, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user mapping: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) Save(ctx context.Context, m *UserMapping) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_mappings (slack_user_id, slack_team_id, slack_email, provider_user_id, provider_email, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (slack_user_id, slack_team_id) DO UPDATE SET
			slack_email = COALESCE(EXCLUDED.slack_email, user_mappings.slack_email),
			provider_user_id = EXCLUDED.provider_user_id,
			provider_email = EXCLUDED.provider_email,
			updated_at = EXCLUDED.updated_at`,
		m.SlackUserID, m.SlackTeamID, m.SlackEmail, m.ProviderUserID, m.ProviderEmail, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save user mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, slackUserID, teamID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM user_mappings WHERE slack_user_id = $1 AND slack_team_id = $2`, slackUserID, teamID)
	if err != nil {
		return fmt.Errorf("delete user mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
