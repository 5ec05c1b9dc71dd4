// Package auth authenticates users either against ROBLE or with locally
// issued tokens, and keeps the marketplace profile of every account.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rajivgeraev/swaply-api/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInactive           = errors.New("account is deactivated")
	ErrEmailTaken         = errors.New("email already registered")
)

// Session is what signup, login and refresh hand back to the client
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *models.User `json:"user"`
}

// Authenticator is implemented by the ROBLE and the local authenticators
type Authenticator interface {
	Signup(ctx context.Context, email, password, name string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, accessToken string) error
	// Verify resolves an access token to an active user
	Verify(ctx context.Context, accessToken string) (*models.User, error)
}

// roleFor returns the role an email is entitled to
func roleFor(email string, admins map[string]bool) string {
	if admins[strings.ToLower(email)] {
		return models.RoleAdmin
	}
	return models.RoleUser
}

// displayName falls back to the local part of the email
func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
