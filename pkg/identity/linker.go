package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sidv1711/slack-bot/pkg/config"
)

// ErrInvalidState is returned for unknown, reused or expired link states.
var ErrInvalidState = errors.New("invalid or expired link state")

const defaultStateTTL = 10 * time.Minute

// EmailLookup resolves a Slack user's email. It is optional.
type EmailLookup func(ctx context.Context, slackUserID string) (string, error)

// ProviderUser is the account returned by the provider's userinfo endpoint.
type ProviderUser struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type pendingLink struct {
	slackUserID string
	teamID      string
	expires     time.Time
}

// Linker runs the OAuth authorization code flow that connects a Slack user
// to a provider account.
type Linker struct {
	oauth       *oauth2.Config
	userInfoURL string
	store       Store
	lookupEmail EmailLookup
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]pendingLink
}

// LinkerOption configures a Linker.
type LinkerOption func(*Linker)

// WithEmailLookup sets how Slack emails are resolved for new mappings.
func WithEmailLookup(fn EmailLookup) LinkerOption {
	return func(l *Linker) {
		l.lookupEmail = fn
	}
}

// WithStateTTL bounds how long an issued auth URL stays valid.
func WithStateTTL(ttl time.Duration) LinkerOption {
	return func(l *Linker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLinkerLogger sets the linker logger.
func WithLinkerLogger(logger *zap.Logger) LinkerOption {
	return func(l *Linker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLinker creates a linker for the provider at cfg.URL.
func NewLinker(cfg config.AuthConfig, store Store, opts ...LinkerOption) (*Linker, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("auth provider url is not configured")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("auth client id is not configured")
	}
	if store == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	l := &Linker{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/propelauth/oauth/authorize",
				TokenURL:  base + "/propelauth/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		userInfoURL: base + "/propelauth/oauth/userinfo",
		store:       store,
		ttl:         defaultStateTTL,
		now:         time.Now,
		logger:      zap.NewNop(),
		pending:     make(map[string]pendingLink),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// AuthURL issues a one-time state for the Slack user and returns the
// provider's authorization URL.
func (l *Linker) AuthURL(slackUserID, teamID string) string {
	state := uuid.NewString()

	l.mu.Lock()
	now := l.now()
	for s, p := range l.pending {
		if now.After(p.expires) {
			delete(l.pending, s)
		}
	}
	l.pending[state] = pendingLink{slackUserID: slackUserID, teamID: teamID, expires: now.Add(l.ttl)}
	l.mu.Unlock()

	l.logger.Info("issued link state", zap.String("slack_user_id", slackUserID), zap.String("team_id", teamID))
	return l.oauth.AuthCodeURL(state)
}

func (l *Linker) consume(state string) (pendingLink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pending[state]
	if !ok {
		return pendingLink{}, ErrInvalidState
	}
	delete(l.pending, state)
	if l.now().After(p.expires) {
		return pendingLink{}, ErrInvalidState
	}
	return p, nil
}

// Complete exchanges code for a token, fetches the provider account and
// records the mapping for the Slack user that requested state.
func (l *Linker) Complete(ctx context.Context, state, code string) (*UserMapping, error) {
	if state == "" || code == "" {
		return nil, fmt.Errorf("missing required parameters")
	}
	link, err := l.consume(state)
	if err != nil {
		return nil, err
	}

	token, err := l.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	user, err := l.userInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return l.GetOrCreate(ctx, link.slackUserID, link.teamID, user)
}

func (l *Linker) userInfo(ctx context.Context, token *oauth2.Token) (*ProviderUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("user info request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var user ProviderUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	if user.UserID == "" {
		return nil, fmt.Errorf("user info response has no user_id")
	}
	return &user, nil
}

// GetOrCreate returns the mapping for the Slack user, creating it or
// refreshing the provider fields when they changed.
func (l *Linker) GetOrCreate(ctx context.Context, slackUserID, teamID string, user *ProviderUser) (*UserMapping, error) {
	now := l.now().UTC()
	existing, err := l.store.Get(ctx, slackUserID, teamID)
	switch {
	case err == nil:
		if existing.ProviderUserID != user.UserID || existing.ProviderEmail != user.Email {
			l.logger.Info("updating user mapping", zap.String("slack_user_id", slackUserID))
			existing.ProviderUserID = user.UserID
			existing.ProviderEmail = user.Email
			existing.UpdatedAt = now
			if err := l.store.Save(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	m := &UserMapping{
		SlackUserID:    slackUserID,
		SlackTeamID:    teamID,
		ProviderUserID: user.UserID,
		ProviderEmail:  user.Email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if l.lookupEmail != nil {
		email, err := l.lookupEmail(ctx, slackUserID)
		if err != nil {
			l.logger.Warn("could not get slack email", zap.String("slack_user_id", slackUserID), zap.Error(err))
		}
		m.SlackEmail = email
	}
	if err := l.store.Save(ctx, m); err != nil {
		return nil, err
	}
	l.logger.Info("created user mapping",
		zap.String("slack_user_id", slackUserID), zap.String("provider_user_id", user.UserID))
	return m, nil
}

// ProviderUserFor returns the provider user id linked in store, or "" when
// the Slack user has not connected an account.
func ProviderUserFor(ctx context.Context, store Store, slackUserID, teamID string) (string, error) {
	m, err := store.Get(ctx, slackUserID, teamID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.ProviderUserID, nil
}
