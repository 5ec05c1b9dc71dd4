package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

// Local authenticates against bcrypt hashes in the store and issues its own JWTs
type Local struct {
	users  store.Users
	tokens *TokenService
	admins map[string]bool
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // session id -> when its last refresh token expires
}

var _ Authenticator = (*Local)(nil)

// NewLocal creates a local authenticator
func NewLocal(users store.Users, tokens *TokenService, admins map[string]bool) *Local {
	return &Local{
		users:   users,
		tokens:  tokens,
		admins:  admins,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

func (a *Local) session(u *models.User) (*Session, error) {
	return a.continueSession(u, uuid.NewString())
}

func (a *Local) continueSession(u *models.User, sid string) (*Session, error) {
	access, refresh, exp, err := a.tokens.IssueFor(u, sid)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp, User: u}, nil
}

func (a *Local) Signup(ctx context.Context, email, password, name string) (*Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := a.now().UTC()
	email = strings.ToLower(strings.TrimSpace(email))
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         displayName(name, email),
		Role:         roleFor(email, a.admins),
		IsActive:     true,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return a.session(u)
}

func (a *Local) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	return a.session(u)
}

func (a *Local) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := a.tokens.Validate(refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	if a.isRevoked(claims.SessionID) {
		return nil, ErrInvalidToken
	}
	u, err := a.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	return a.continueSession(u, claims.SessionID)
}

// Logout ends the whole session: its access tokens and every refresh token
// issued under it stop working
func (a *Local) Logout(_ context.Context, accessToken string) error {
	claims, err := a.tokens.Validate(accessToken, KindAccess)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for sid, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, sid)
		}
	}
	a.revoked[claims.SessionID] = now.Add(a.tokens.RefreshTTL())
	return nil
}

func (a *Local) isRevoked(sid string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.revoked[sid]
	return ok
}

func (a *Local) Verify(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := a.tokens.Validate(accessToken, KindAccess)
	if err != nil {
		return nil, err
	}
	if a.isRevoked(claims.SessionID) {
		return nil, ErrInvalidToken
	}
	return a.activeUser(ctx, claims)
}

func (a *Local) activeUser(ctx context.Context, claims *Claims) (*models.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	u, err := a.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	return u, nil
}
