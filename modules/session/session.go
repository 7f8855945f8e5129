package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoCredentials is returned when no credential pair has been stored.
var ErrNoCredentials = errors.New("session: no credentials")

// TokenStore persists the credential pair between process runs.
type TokenStore interface {
	// Load returns ErrNoCredentials when nothing has been saved.
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
	Clear(ctx context.Context) error
}

// Session is the single owner of the process-wide credential pair.
// Reads are safe from any goroutine; writers are serialized.
type Session struct {
	mu    sync.RWMutex
	token oauth2.Token
	store TokenStore
}

var _ oauth2.TokenSource = (*Session)(nil)

// New returns an empty session backed by store. A nil store keeps the
// credentials in memory only.
func New(store TokenStore) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{store: store}
}

// Load replaces the in-memory credentials with the stored ones.
func (s *Session) Load(ctx context.Context) error {
	tok, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = *tok
	s.mu.Unlock()
	return nil
}

// Login installs a fresh credential pair and persists it.
func (s *Session) Login(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("session: login: %w", ErrNoCredentials)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, tok); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.token = *tok
	return nil
}

// Logout forgets the credentials in memory and in the store.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = oauth2.Token{}
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.AccessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.RefreshToken
}

// Expiry is the access token expiry, zero when unknown.
func (s *Session) Expiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Expiry
}

// SetAccessToken replaces the access token, keeping the refresh token.
func (s *Session) SetAccessToken(ctx context.Context, accessToken string, expiry time.Time) error {
	return s.Update(ctx, &oauth2.Token{AccessToken: accessToken, Expiry: expiry})
}

// Update applies the result of a refresh. The refresh token is only
// replaced when tok carries a new one. The in-memory state is updated
// even if persisting fails; the error is still returned.
func (s *Session) Update(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("session: update: %w", ErrNoCredentials)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.token
	next.AccessToken = tok.AccessToken
	next.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	s.token = next

	if err := s.store.Save(ctx, &next); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token.AccessToken == "" {
		return nil, ErrNoCredentials
	}
	tok := s.token
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	return &tok, nil
}
