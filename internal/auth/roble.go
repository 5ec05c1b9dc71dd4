package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/reqctx"
	"github.com/rajivgeraev/swaply-api/internal/roble"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

// verifyCacheTTL bounds how long a verified token is trusted without asking ROBLE
const verifyCacheTTL = time.Minute

type verified struct {
	userID uuid.UUID
	until  time.Time
}

// Roble delegates credentials to ROBLE and keeps a marketplace profile per
// email in the store, created on first sign-in
type Roble struct {
	client *roble.Client
	users  store.Users
	admins map[string]bool
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]verified
}

var _ Authenticator = (*Roble)(nil)

// NewRoble creates a ROBLE backed authenticator
func NewRoble(client *roble.Client, users store.Users, admins map[string]bool) *Roble {
	return &Roble{
		client: client,
		users:  users,
		admins: admins,
		now:    time.Now,
		cache:  make(map[string]verified),
	}
}

func (a *Roble) Signup(ctx context.Context, email, password, name string) (*Session, error) {
	err := a.client.SignupDirect(ctx, email, password, name)
	if roble.IsStatus(err, http.StatusBadRequest) || roble.IsStatus(err, http.StatusConflict) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	return a.Login(ctx, email, password)
}

func (a *Roble) Login(ctx context.Context, email, password string) (*Session, error) {
	tokens, err := a.client.Login(ctx, email, password)
	if roble.IsUnauthorized(err) || roble.IsStatus(err, http.StatusBadRequest) || roble.IsStatus(err, http.StatusNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	name := ""
	if tokens.User != nil {
		name = tokens.User.Name
	}
	ctx = reqctx.WithAccessToken(ctx, tokens.AccessToken)
	u, err := a.profile(ctx, email, name)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	return a.session(tokens, u), nil
}

func (a *Roble) session(tokens *roble.Tokens, u *models.User) *Session {
	return &Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokenExpiry(tokens.AccessToken, a.now()),
		User:         u,
	}
}

func (a *Roble) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	tokens, err := a.client.Refresh(ctx, refreshToken)
	if roble.IsUnauthorized(err) || roble.IsStatus(err, http.StatusBadRequest) || roble.IsStatus(err, http.StatusForbidden) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	u, err := a.Verify(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	return a.session(tokens, u), nil
}

func (a *Roble) Logout(ctx context.Context, accessToken string) error {
	a.mu.Lock()
	delete(a.cache, accessToken)
	a.mu.Unlock()

	err := a.client.Logout(ctx, accessToken)
	if roble.IsUnauthorized(err) {
		return ErrInvalidToken
	}
	return err
}

func (a *Roble) Verify(ctx context.Context, accessToken string) (*models.User, error) {
	ctx = reqctx.WithAccessToken(ctx, accessToken)

	if id, ok := a.cached(accessToken); ok {
		u, err := a.users.GetUser(ctx, id)
		if err == nil {
			if !u.IsActive {
				return nil, ErrInactive
			}
			return u, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	info, err := a.client.VerifyToken(ctx, accessToken)
	if roble.IsUnauthorized(err) || roble.IsStatus(err, http.StatusForbidden) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !info.Valid || info.User.Email == "" {
		return nil, ErrInvalidToken
	}

	u, err := a.profile(ctx, info.User.Email, "")
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactive
	}

	a.remember(accessToken, u.ID)
	return u, nil
}

func (a *Roble) cached(token string) (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.cache[token]
	if !ok || a.now().After(v.until) {
		delete(a.cache, token)
		return uuid.Nil, false
	}
	return v.userID, true
}

func (a *Roble) remember(token string, id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for t, v := range a.cache {
		if now.After(v.until) {
			delete(a.cache, t)
		}
	}
	until := now.Add(verifyCacheTTL)
	if exp := tokenExpiry(token, now); exp.Before(until) {
		until = exp
	}
	a.cache[token] = verified{userID: id, until: until}
}

// profile returns the marketplace user for email, creating it on first sight
// and keeping the admin role in line with ADMIN_EMAILS
func (a *Roble) profile(ctx context.Context, email, name string) (*models.User, error) {
	email = strings.ToLower(email)
	u, err := a.users.GetUserByEmail(ctx, email)
	if err == nil {
		if role := roleFor(email, a.admins); role == models.RoleAdmin && u.Role != role {
			u.Role = role
			u.UpdatedAt = a.now().UTC()
			if err := a.users.UpdateUser(ctx, u); err != nil {
				return nil, err
			}
		}
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := a.now().UTC()
	u = &models.User{
		ID:        uuid.New(),
		Email:     email,
		Name:      displayName(name, email),
		Role:      roleFor(email, a.admins),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = a.users.CreateUser(ctx, u)
	if errors.Is(err, store.ErrConflict) {
		return a.users.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// tokenExpiry reads exp without verifying; ROBLE holds the signing key
func tokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(15 * time.Minute)
}
