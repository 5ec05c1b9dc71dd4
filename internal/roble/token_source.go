package roble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rajivgeraev/swaply-api/internal/logger"
)

const (
	// expiryLeeway renews a token this long before it actually expires
	expiryLeeway = 30 * time.Second
	// fallbackLifetime is assumed when a token carries no exp claim
	fallbackLifetime = 10 * time.Minute
)

// ErrNoServiceAccount is returned when no service credentials are configured
var ErrNoServiceAccount = errors.New("roble: no service account configured")

// tokenIssuer is the part of Client a TokenSource needs
type tokenIssuer interface {
	Login(ctx context.Context, email, password string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// TokenSource hands out the service account's access token. The token is
// cached until shortly before its exp claim; concurrent callers share one
// renewal, which refreshes first and logs in again when refreshing fails.
type TokenSource struct {
	issuer   tokenIssuer
	email    string
	password string
	now      func() time.Time

	mu      sync.Mutex
	access  string
	refresh string
	expiry  time.Time

	group singleflight.Group
}

// NewTokenSource creates a token source logging in as email
func NewTokenSource(issuer tokenIssuer, email, password string) *TokenSource {
	return &TokenSource{
		issuer:   issuer,
		email:    email,
		password: password,
		now:      time.Now,
	}
}

// Configured reports whether service credentials are present
func (s *TokenSource) Configured() bool {
	return s != nil && s.email != "" && s.password != ""
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access != "" && s.now().Add(expiryLeeway).Before(s.expiry) {
		return s.access, true
	}
	return "", false
}

// Token returns a valid access token, renewing it when needed
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if !s.Configured() {
		return "", ErrNoServiceAccount
	}
	if token, ok := s.cached(); ok {
		return token, nil
	}

	v, err, _ := s.group.Do("renew", func() (any, error) {
		if token, ok := s.cached(); ok {
			return token, nil
		}
		return s.renew(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *TokenSource) renew(ctx context.Context) (string, error) {
	log := logger.FromContext(ctx)

	s.mu.Lock()
	refresh := s.refresh
	s.mu.Unlock()

	var tokens *Tokens
	if refresh != "" {
		t, err := s.issuer.Refresh(ctx, refresh)
		if err == nil {
			tokens = t
		} else {
			log.WithError(err).Warn("service token refresh failed, logging in again")
		}
	}
	if tokens == nil {
		t, err := s.issuer.Login(ctx, s.email, s.password)
		if err != nil {
			return "", err
		}
		tokens = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = tokens.AccessToken
	if tokens.RefreshToken != "" {
		s.refresh = tokens.RefreshToken
	}
	s.expiry = expiryOf(tokens.AccessToken, s.now())
	return s.access, nil
}

// Invalidate drops token if it is still the cached one, so the next call renews
func (s *TokenSource) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access == token {
		s.access = ""
		s.expiry = time.Time{}
	}
}

// expiryOf reads the exp claim without verifying the signature; ROBLE owns the key
func expiryOf(token string, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return now.Add(fallbackLifetime)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return now.Add(fallbackLifetime)
	}
	return exp.Time
}
