// Package servertest runs the full application against the memory store for
// handler tests.
package servertest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/auth"
	"github.com/rajivgeraev/swaply-api/internal/captcha"
	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/media"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/search"
	"github.com/rajivgeraev/swaply-api/internal/server"
	"github.com/rajivgeraev/swaply-api/internal/store/memstore"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

const (
	// AdminEmail is granted the admin role on signup
	AdminEmail = "admin@swaply.test"
	// Password is the password of every account Signup creates
	Password = "correct-horse"
)

// Harness is a running application with direct access to its store
type Harness struct {
	t      *testing.T
	Server *server.Server
	Store  *memstore.Store
	Events *events.Recorder
	Config *config.Config
}

// Account is a signed up user and its access token
type Account struct {
	User  *models.User
	Token string
}

// Option adjusts the dependencies before the server is built
type Option func(*server.Deps)

// New builds the application on a fresh memory store
func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	cfg := &config.Config{
		AppEnv:         "test",
		CORSOrigins:    "*",
		AdminEmails:    AdminEmail,
		RequestTimeout: 5 * time.Second,
		StoreBackend:   config.BackendMemory,
	}
	st := memstore.New()
	rec := &events.Recorder{}
	syn, err := search.LoadSynonyms("")
	require.NoError(t, err)

	deps := server.Deps{
		Config:    cfg,
		Store:     st,
		Auth:      auth.NewLocal(st, auth.NewTokenService("servertest-secret", time.Hour, 24*time.Hour), cfg.Admins()),
		Media:     media.Disabled{},
		Events:    rec,
		Captcha:   captcha.New(config.RecaptchaConfig{}),
		Searcher:  search.NewSearcher(nil, search.NewEngine(syn)),
		Validator: validation.MustNew(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv := server.New(deps)
	t.Cleanup(srv.Hub.Shutdown)
	return &Harness{t: t, Server: srv, Store: st, Events: rec, Config: cfg}
}

// Do sends a request through the fiber app. body may be nil, a []byte or a
// value encoded as JSON.
func (h *Harness) Do(method, path, token string, body any) (int, []byte) {
	h.t.Helper()

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/json"
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.Server.App.Test(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, raw
}

// JSON is Do followed by decoding the response into out, when out is not nil
func (h *Harness) JSON(method, path, token string, body, out any) int {
	h.t.Helper()
	status, raw := h.Do(method, path, token, body)
	if out != nil && len(raw) > 0 {
		require.NoError(h.t, json.Unmarshal(raw, out), string(raw))
	}
	return status
}

// Signup registers a user named name through the API
func (h *Harness) Signup(name string) Account {
	h.t.Helper()
	return h.signup(strings.ToLower(name)+"-"+uuid.NewString()[:8]+"@swaply.test", name)
}

// Admin registers a user with the admin role
func (h *Harness) Admin() Account {
	h.t.Helper()
	return h.signup(AdminEmail, "Admin")
}

func (h *Harness) signup(email, name string) Account {
	var session auth.Session
	status := h.JSON(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":    email,
		"password": Password,
		"name":     name,
	}, &session)
	require.Equal(h.t, http.StatusCreated, status)
	require.NotNil(h.t, session.User)
	return Account{User: session.User, Token: session.AccessToken}
}

// CreateProduct lists a product for acc through the API
func (h *Harness) CreateProduct(acc Account, title, category, wanted string) *models.Product {
	h.t.Helper()
	var p models.Product
	status := h.JSON(http.MethodPost, "/api/products", acc.Token, map[string]any{
		"title":       title,
		"category":    category,
		"description": "en buen estado",
		"wanted":      wanted,
	}, &p)
	require.Equal(h.t, http.StatusCreated, status)
	return &p
}

// Product reads a product straight from the store
func (h *Harness) Product(id uuid.UUID) *models.Product {
	h.t.Helper()
	p, err := h.Store.GetProduct(context.Background(), id)
	require.NoError(h.t, err)
	return p
}
