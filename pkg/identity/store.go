// Package identity links Slack users to accounts at the auth provider.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no mapping exists.
var ErrNotFound = errors.New("user mapping not found")

// UserMapping ties a Slack user in a workspace to a provider account.
type UserMapping struct {
	SlackUserID    string    `json:"slack_user_id"`
	SlackTeamID    string    `json:"slack_team_id"`
	SlackEmail     string    `json:"slack_email,omitempty"`
	ProviderUserID string    `json:"provider_user_id"`
	ProviderEmail  string    `json:"provider_email"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store persists mappings keyed by Slack user and team.
type Store interface {
	Get(ctx context.Context, slackUserID, teamID string) (*UserMapping, error)
	Save(ctx context.Context, m *UserMapping) error
	Delete(ctx context.Context, slackUserID, teamID string) error
}

type key struct {
	user string
	team string
}

// MemoryStore keeps mappings in process memory. It backs development mode.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings map[key]UserMapping
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mappings: make(map[key]UserMapping)}
}

func (s *MemoryStore) Get(_ context.Context, slackUserID, teamID string) (*UserMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[key{slackUserID, teamID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) Save(_ context.Context, m *UserMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{m.SlackUserID, m.SlackTeamID}
	if existing, ok := s.mappings[k]; ok && m.CreatedAt.IsZero() {
		m.CreatedAt = existing.CreatedAt
	}
	s.mappings[k] = *m
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, slackUserID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{slackUserID, teamID}
	if _, ok := s.mappings[k]; !ok {
		return ErrNotFound
	}
	delete(s.mappings, k)
	return nil
}
