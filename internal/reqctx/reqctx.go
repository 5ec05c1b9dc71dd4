// Package reqctx carries the caller's credential and identity through a
// request's context.Context.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type accessTokenKey struct{}
type identityKey struct{}

// Identity is the authenticated caller
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// WithAccessToken stores the bearer token of the current request
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the bearer token stored by WithAccessToken
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}

// WithIdentity stores the authenticated caller
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller stored by WithIdentity
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
