package admin_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/server/servertest"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

type usersPage struct {
	Users []models.User `json:"users"`
	Total int           `json:"total"`
	Limit int           `json:"limit"`
}

func TestAdmin_RequiresRole(t *testing.T) {
	h := servertest.New(t)
	alice := h.Signup("Alice")

	status, _ := h.Do(http.MethodGet, "/api/admin/stats", alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.Do(http.MethodGet, "/api/admin/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdmin_StatsAndUsers(t *testing.T) {
	h := servertest.New(t)
	admin := h.Admin()
	alice, bob := h.Signup("Alice"), h.Signup("Bob")
	h.CreateProduct(alice, "Bicicleta", "deportes", "")
	h.CreateProduct(bob, "Guitarra", "musica", "")
	assert.Equal(t, models.RoleAdmin, admin.User.Role)

	var stats store.Stats
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/admin/stats", admin.Token, nil, &stats))
	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, 2, stats.Products[models.ProductAvailable])

	var page usersPage
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/admin/users?limit=2", admin.Token, nil, &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Len(t, page.Users, 2)
}

func TestAdmin_Deactivate(t *testing.T) {
	h := servertest.New(t)
	admin := h.Admin()
	alice := h.Signup("Alice")
	path := "/api/admin/users/" + alice.User.ID.String() + "/status"

	var u models.User
	require.Equal(t, http.StatusOK, h.JSON(http.MethodPut, path, admin.Token, map[string]any{"is_active": false}, &u))
	assert.False(t, u.IsActive)

	status, _ := h.Do(http.MethodGet, "/api/auth/me", alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.Do(http.MethodGet, "/api/users/"+alice.User.ID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	require.Equal(t, http.StatusOK, h.JSON(http.MethodPut, path, admin.Token, map[string]any{"is_active": true}, &u))
	status, _ = h.Do(http.MethodGet, "/api/auth/me", alice.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.Do(http.MethodPut, "/api/admin/users/"+admin.User.ID.String()+"/status", admin.Token, map[string]any{"is_active": false})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = h.Do(http.MethodPut, "/api/admin/users/"+uuid.NewString()+"/status", admin.Token, map[string]any{"is_active": false})
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.Do(http.MethodPut, path, admin.Token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdmin_DeleteProduct(t *testing.T) {
	h := servertest.New(t)
	admin := h.Admin()
	alice := h.Signup("Alice")
	p := h.CreateProduct(alice, "Articulo prohibido", "otros", "")

	status, _ := h.Do(http.MethodDelete, "/api/admin/products/"+p.ID.String(), admin.Token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.Do(http.MethodDelete, "/api/admin/products/"+p.ID.String(), admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
