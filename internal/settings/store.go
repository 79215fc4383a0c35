package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dotcommander/actionlib/internal/storage"
	"github.com/dotcommander/actionlib/internal/yandex"
	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

// TokenIssuer exchanges an OAuth token for an IAM token.
type TokenIssuer interface {
	ExchangeToken(ctx context.Context, oauthToken string) (yandex.IAMToken, error)
}

// Store is the single owner of the settings state. The periodic refresher
// and interactive callers share one instance; token refreshes are
// serialized and concurrent requests for a refresh share one exchange.
type Store struct {
	mu      sync.Mutex
	state   Settings
	storage storage.Storage
	path    string
	issuer  TokenIssuer
	now     func() time.Time
	logger  *slog.Logger

	// refreshMu serializes token exchanges; refreshes coalesces concurrent callers
	refreshMu      sync.Mutex
	refreshes      singleflight.Group
	refreshTimeout time.Duration
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRefreshTimeout bounds one token exchange, including the settings
// file reads and writes around it
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.refreshTimeout = timeout
		}
	}
}

func NewStore(st storage.Storage, path string, issuer TokenIssuer, opts ...Option) *Store {
	s := &Store{
		storage: st,
		path:    path,
		issuer:  issuer,
		now:     time.Now,
		logger:  slog.Default().With("component", "settings"),

		refreshTimeout: 2 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.state = Defaults(s.now())
	return s
}

// Load replaces the in-memory state with the persisted one. A missing file
// keeps the defaults. A malformed file is reported as
// *errors.PersistenceCorruptError and leaves the state untouched.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.storage.Load(ctx, s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("no settings file, using defaults", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := decode(data, Defaults(s.now()))
	if err != nil {
		return &apperrors.PersistenceCorruptError{Path: s.path, Err: err}
	}

	s.state = loaded
	s.logger.Debug("settings loaded",
		"path", s.path,
		"has_oauth_token", loaded.OAuthToken != "",
		"iam_token_expires", loaded.IAMTokenExpires.Format(time.RFC3339))

	return nil
}

// Save writes the full current state, overwriting the file
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	data, err := encode(s.state)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.storage.Save(ctx, s.path, data); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SystemPrompt
}

// SetOAuthToken records a user-supplied OAuth token and persists it
func (s *Store) SetOAuthToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, func(st *Settings) {
		st.OAuthToken = strings.TrimSpace(token)
	})
}

// SetSystemPrompt records the prompt prepended to every generation and persists it
func (s *Store) SetSystemPrompt(ctx context.Context, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, func(st *Settings) {
		st.SystemPrompt = prompt
	})
}

// ValidToken returns the IAM token, refreshing it first when it has expired
// (now >= expiry). A token that was never issued is refreshed even when the
// stored expiry lies in the future. Callers that find the token expired at
// the same time trigger a single exchange; a caller giving up does not
// cancel it for the others.
func (s *Store) ValidToken(ctx context.Context) (string, error) {
	if token, ok := s.currentToken(); ok {
		return token, nil
	}

	_, err := s.shared(ctx, "expired", func(ctx context.Context) error {
		// A forced refresh may have landed while we waited
		if _, ok := s.currentToken(); ok {
			return nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IAMToken, nil
}

// RefreshToken exchanges the OAuth token for a new IAM token regardless of
// the current expiry. The token and its expiry are replaced together and
// persisted; on any failure neither changes.
func (s *Store) RefreshToken(ctx context.Context) error {
	joined, err := s.shared(ctx, "forced", s.refresh)
	if joined {
		s.logger.Debug("joined in-flight token refresh")
	}
	return err
}

// shared runs fn once for all concurrent callers of key, serialized with
// every other exchange. fn gets a context detached from the caller's
// cancellation and bounded by the refresh timeout; each caller still stops
// waiting when its own ctx is done.
func (s *Store) shared(ctx context.Context, key string, fn func(context.Context) error) (bool, error) {
	ch := s.refreshes.DoChan(key, func() (any, error) {
		s.refreshMu.Lock()
		defer s.refreshMu.Unlock()

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()
		return nil, fn(callCtx)
	})

	select {
	case res := <-ch:
		return res.Shared, res.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Store) currentToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IAMToken, s.state.TokenValid(s.now())
}

// persistedLocked reads the state on disk, falling back to the in-memory
// state when nothing has been written yet
func (s *Store) persistedLocked(ctx context.Context) (Settings, error) {
	data, err := s.storage.Load(ctx, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.state, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	current, err := decode(data, Defaults(s.now()))
	if err != nil {
		return Settings{}, &apperrors.PersistenceCorruptError{Path: s.path, Err: err}
	}
	return current, nil
}

// updateLocked applies change on top of the persisted state and writes the
// result back. Other processes sharing the file (a running daemon, another
// CLI call) keep the fields they wrote since this store loaded.
func (s *Store) updateLocked(ctx context.Context, change func(*Settings)) error {
	next, err := s.persistedLocked(ctx)
	if err != nil {
		return err
	}
	change(&next)
	s.state = next
	return s.saveLocked(ctx)
}

func (s *Store) refresh(ctx context.Context) error {
	s.mu.Lock()
	current, err := s.persistedLocked(ctx)
	if err == nil {
		s.state.OAuthToken = current.OAuthToken
		s.state.SystemPrompt = current.SystemPrompt
	}
	oauth := s.state.OAuthToken
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("refreshing IAM token: %w", err)
	}
	if oauth == "" {
		return apperrors.ErrMissingOAuthToken
	}

	start := s.now()
	tok, err := s.issuer.ExchangeToken(ctx, oauth)
	if err != nil {
		s.logger.Error("error refreshing IAM token", "error", err)
		return fmt.Errorf("refreshing IAM token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.updateLocked(ctx, func(st *Settings) {
		st.IAMToken = tok.Token
		st.IAMTokenExpires = tok.ExpiresAt.UTC()
	})

	s.logger.Info("IAM token refreshed",
		"expires_at", tok.ExpiresAt.UTC().Format(time.RFC3339),
		"duration_ms", s.now().Sub(start).Milliseconds())

	return err
}
