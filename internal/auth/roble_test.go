package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/roble"
	"github.com/rajivgeraev/swaply-api/internal/roble/robletest"
	"github.com/rajivgeraev/swaply-api/internal/store/memstore"
)

func newRoble(t *testing.T) (*Roble, *robletest.Server, *memstore.Store) {
	t.Helper()
	srv := robletest.NewServer("swaply_test")
	t.Cleanup(srv.Close)
	client := roble.NewClient(config.RobleConfig{BaseURL: srv.URL, DBName: srv.DBName, Timeout: 5 * time.Second})
	st := memstore.New()
	return NewRoble(client, st, map[string]bool{"boss@example.com": true}), srv, st
}

func TestRoble_SignupCreatesProfile(t *testing.T) {
	a, _, st := newRoble(t)
	ctx := context.Background()

	sess, err := a.Signup(ctx, "ana@example.com", "secret123", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana", sess.User.Name)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.True(t, sess.ExpiresAt.After(time.Now()))

	stored, err := st.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, stored.ID)

	_, err = a.Signup(ctx, "ana@example.com", "secret123", "Ana")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRoble_LoginReusesProfile(t *testing.T) {
	a, srv, _ := newRoble(t)
	ctx := context.Background()
	srv.AddAccount("boss@example.com", "secret123", "Boss")

	first, err := a.Login(ctx, "boss@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.User.Role)

	second, err := a.Login(ctx, "BOSS@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	_, err = a.Login(ctx, "boss@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRoble_VerifyRefreshLogout(t *testing.T) {
	a, srv, st := newRoble(t)
	ctx := context.Background()
	srv.AddAccount("ana@example.com", "secret123", "Ana")

	sess, err := a.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	u, err := a.Verify(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	// served from the verify cache even after ROBLE forgets the token
	srv.ExpireTokens()
	_, err = a.Verify(ctx, sess.AccessToken)
	require.NoError(t, err)

	refreshed, err := a.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, refreshed.User.ID)

	require.NoError(t, a.Logout(ctx, refreshed.AccessToken))
	_, err = a.Verify(ctx, refreshed.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Verify(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)

	u.IsActive = false
	require.NoError(t, st.UpdateUser(ctx, u))
	_, err = a.Verify(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrInactive)
}
