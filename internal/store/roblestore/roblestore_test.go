package roblestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/reqctx"
	"github.com/rajivgeraev/swaply-api/internal/roble"
	"github.com/rajivgeraev/swaply-api/internal/roble/robletest"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/store/storetest"
)

func newStore(t *testing.T) (*Store, *robletest.Server) {
	t.Helper()
	srv := robletest.NewServer("swaply_test")
	t.Cleanup(srv.Close)
	srv.AddAccount("service@swaply.test", "service-pass", "Service")

	client := roble.NewClient(config.RobleConfig{BaseURL: srv.URL, DBName: srv.DBName, Timeout: 5 * time.Second})
	tokens := roble.NewTokenSource(client, "service@swaply.test", "service-pass")
	return New(client, tokens), srv
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestServiceTokenRenewedAfterRejection(t *testing.T) {
	s, srv := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, storetest.NewUser("ana")))
	assert.EqualValues(t, 1, srv.Logins())

	srv.ExpireTokens()

	_, total, err := s.ListUsers(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.EqualValues(t, 1, srv.Refreshes())
}

func TestRequestTokenIsPreferred(t *testing.T) {
	s, srv := newStore(t)
	srv.AddAccount("ana@example.com", "secret123", "Ana")

	ctx := reqctx.WithAccessToken(context.Background(), srv.IssueToken("ana@example.com"))
	require.NoError(t, s.CreateUser(ctx, storetest.NewUser("ana")))
	assert.EqualValues(t, 0, srv.Logins(), "service account must not be used")

	bad := reqctx.WithAccessToken(context.Background(), "expired")
	_, err := s.GetUserByEmail(bad, "ana@example.com")
	assert.True(t, roble.IsUnauthorized(err))
}

func TestUpdateClearsOmittedFields(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	u := storetest.NewUser("ana")
	u.Bio = "collector"
	require.NoError(t, s.CreateUser(ctx, u))

	u.Bio = ""
	require.NoError(t, s.UpdateUser(ctx, u))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Bio)
}
