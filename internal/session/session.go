// Package session holds the operator's bearer token and the single
// unauthorized-response handler every network call reports to.
package session

import (
	"context"
	"sync"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog"
)

// TokenKey is the settings key the bearer token is persisted under.
const TokenKey = "authkey"

// TokenStore persists the token between runs.
type TokenStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// UnauthorizedFunc is called after the session has been cleared by a 403.
type UnauthorizedFunc func()

// Session is the explicit auth context injected into the API client and
// stream channels.
type Session struct {
	mu        sync.RWMutex
	token     string
	store     TokenStore
	observers []UnauthorizedFunc
	logger    zerolog.Logger
}

// New creates a session backed by store. A nil store keeps the token in
// memory only.
func New(store TokenStore, logger zerolog.Logger) *Session {
	return &Session{
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Load reads the persisted token, if any.
func (s *Session) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	token, err := s.store.GetSetting(ctx, TokenKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Token returns the current bearer token ("" when logged out).
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// SetToken stores a freshly issued token.
func (s *Session) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.SetSetting(ctx, TokenKey, token)
}

// Clear drops the token (logout). Last writer wins.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.DeleteSetting(ctx, TokenKey)
}

// OnUnauthorized registers an observer for forced logouts.
func (s *Session) OnUnauthorized(fn UnauthorizedFunc) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// HandleUnauthorized clears the session and notifies every observer. It is
// the one place a 403 from any call ends up. The persisted token is removed
// even when the triggering request's context is already done.
func (s *Session) HandleUnauthorized(ctx context.Context) {
	if err := s.Clear(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear persisted token")
	}
	s.logger.Warn().Msg("Session rejected by server, logged out")

	s.mu.RLock()
	observers := make([]UnauthorizedFunc, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn()
	}
}

// Expiry returns the token's exp claim. The signature is not verified; the
// backend remains the authority.
func (s *Session) Expiry() (time.Time, bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case int64:
		return time.Unix(exp, 0), true
	}
	return time.Time{}, false
}

// Expired reports whether the token carries an exp claim in the past.
func (s *Session) Expired(now time.Time) bool {
	exp, ok := s.Expiry()
	return ok && !now.Before(exp)
}
