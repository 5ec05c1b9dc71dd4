package user_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/server/servertest"
)

type profile struct {
	User       *models.PublicUser `json:"user"`
	Reputation models.Reputation  `json:"reputation"`
}

type products struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
}

func TestProfile(t *testing.T) {
	h := servertest.New(t)
	alice := h.Signup("Alice")

	var u models.User
	require.Equal(t, http.StatusOK, h.JSON(http.MethodPut, "/api/users/me", alice.Token, map[string]any{
		"bio": "Cambio cosas", "location": "Barranquilla",
	}, &u))
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "Barranquilla", u.Location)

	var p profile
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/users/"+alice.User.ID.String(), "", nil, &p))
	assert.Equal(t, "Cambio cosas", p.User.Bio)
	assert.Equal(t, 0, p.Reputation.Count)

	status, raw := h.Do(http.MethodGet, "/api/users/"+alice.User.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(raw), "email")

	status, _ = h.Do(http.MethodGet, "/api/users/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.Do(http.MethodPut, "/api/users/me", "", map[string]any{"bio": "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestUserProducts_OwnerSeesAll(t *testing.T) {
	h := servertest.New(t)
	alice, bob := h.Signup("Alice"), h.Signup("Bob")
	h.CreateProduct(alice, "Bicicleta", "deportes", "")
	sold := h.CreateProduct(alice, "Patineta", "deportes", "")

	stored := h.Product(sold.ID)
	stored.Status = models.ProductTraded
	require.NoError(t, h.Store.UpdateProduct(context.Background(), stored))

	path := "/api/users/" + alice.User.ID.String() + "/products"
	var list products
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, path, "", nil, &list))
	assert.Equal(t, 1, list.Total)
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, path, bob.Token, nil, &list))
	assert.Equal(t, 1, list.Total)
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, path, alice.Token, nil, &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "Alice", list.Products[0].Owner.Name)
}
