package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/config"
)

func fakeSiteverify(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "shh", r.PostForm.Get("secret"))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if r.PostForm.Get("response") == "good" {
			_, _ = w.Write([]byte(`{"success":true,"hostname":"swaply.app"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify(t *testing.T) {
	srv := fakeSiteverify(t, http.StatusOK)
	v := New(config.RecaptchaConfig{Secret: "shh", VerifyURL: srv.URL})
	ctx := context.Background()

	assert.True(t, v.Enabled())
	assert.NoError(t, v.Verify(ctx, "good", "10.0.0.1"))
	assert.ErrorIs(t, v.Verify(ctx, "bad", ""), ErrRejected)
	assert.ErrorIs(t, v.Verify(ctx, "", ""), ErrMissing)
}

func TestVerify_UpstreamFailure(t *testing.T) {
	srv := fakeSiteverify(t, http.StatusInternalServerError)
	v := New(config.RecaptchaConfig{Secret: "shh", VerifyURL: srv.URL})

	err := v.Verify(context.Background(), "good", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestVerify_Disabled(t *testing.T) {
	v := New(config.RecaptchaConfig{})
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(context.Background(), "", ""))
}
