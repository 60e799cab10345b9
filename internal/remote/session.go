package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/divvyhq/divvy/internal/storage"
)

// ErrSessionExpired is returned when the stored token's expiry has passed.
// The sync worker stops draining on an expired session; retrying would only
// produce auth rejections.
var ErrSessionExpired = errors.New("session token expired")

// Claims are the token claims the client cares about. The token is issued
// and signed by the backend; the client only decodes it to learn who the
// session user is and when the token lapses. Signature verification is the
// server's job.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Session holds the bearer token for the current signed-in user, persisted
// to the local store so a restart does not force a re-login.
type Session struct {
	store storage.LocalStore

	mu     sync.RWMutex
	token  string
	claims *Claims
}

// LoadSession restores the persisted session, if any.
func LoadSession(ctx context.Context, store storage.LocalStore) (*Session, error) {
	s := &Session{store: store}
	data, err := store.Get(ctx, storage.CollectionSession)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := s.setToken(ctx, string(data), false); err != nil {
		// A stale or malformed persisted token is not fatal; the user just
		// needs to sign in again.
		return &Session{store: store}, nil
	}
	return s, nil
}

// SetToken stores a freshly issued token and persists it.
func (s *Session) SetToken(ctx context.Context, token string) error {
	return s.setToken(ctx, token, true)
}

func (s *Session) setToken(ctx context.Context, token string, persist bool) error {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("failed to decode session token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.mu.Unlock()

	if persist {
		if err := s.store.Put(ctx, storage.CollectionSession, []byte(token)); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}
	return nil
}

// Clear drops the session on logout.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.claims = nil
	s.mu.Unlock()
	return s.store.Delete(ctx, storage.CollectionSession)
}

// Token returns the raw bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the session user's id, or "" when signed out.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return ""
	}
	return s.claims.UserID
}

// Email returns the session user's email, or "" when signed out.
func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return ""
	}
	return s.claims.Email
}

// Valid reports whether a token is present and not expired.
// Returns ErrSessionExpired when the expiry has passed.
func (s *Session) Valid() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.claims == nil {
		return errors.New("no session token")
	}
	if s.claims.ExpiresAt != nil && s.claims.ExpiresAt.Before(time.Now()) {
		return ErrSessionExpired
	}
	return nil
}
