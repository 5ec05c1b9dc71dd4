package reqctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccessToken(t *testing.T) {
	_, ok := AccessToken(context.Background())
	assert.False(t, ok)

	_, ok = AccessToken(WithAccessToken(context.Background(), ""))
	assert.False(t, ok)

	token, ok := AccessToken(WithAccessToken(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func TestIdentity(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	want := Identity{UserID: uuid.New(), Email: "ana@example.com", Role: "user"}
	got, ok := IdentityFrom(WithIdentity(context.Background(), want))
	assert.True(t, ok)
	assert.Equal(t, want, got)
}
