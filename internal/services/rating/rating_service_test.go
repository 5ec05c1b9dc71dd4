package rating_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/server/servertest"
)

type ratingsResponse struct {
	Ratings    []models.Rating   `json:"ratings"`
	Reputation models.Reputation `json:"reputation"`
}

// tradeBetween proposes a trade from a to b and returns its id
func tradeBetween(t *testing.T, h *servertest.Harness, a, b servertest.Account) uuid.UUID {
	t.Helper()
	offered := h.CreateProduct(a, "Bicicleta", "deportes", "")
	requested := h.CreateProduct(b, "Guitarra", "musica", "")
	var trade models.Trade
	require.Equal(t, http.StatusCreated, h.JSON(http.MethodPost, "/api/trueques", a.Token, map[string]any{
		"offered_product_id":   offered.ID,
		"requested_product_id": requested.ID,
	}, &trade))
	return trade.ID
}

func complete(t *testing.T, h *servertest.Harness, id uuid.UUID, a, b servertest.Account) {
	t.Helper()
	path := "/api/trueques/" + id.String()
	status, _ := h.Do(http.MethodPut, path+"/status", b.Token, map[string]any{"status": models.TradeAccepted})
	require.Equal(t, http.StatusOK, status)
	status, _ = h.Do(http.MethodPut, path+"/confirm", a.Token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = h.Do(http.MethodPut, path+"/confirm", b.Token, nil)
	require.Equal(t, http.StatusOK, status)
}

func rate(h *servertest.Harness, acc servertest.Account, tradeID uuid.UUID, score int) (int, *models.Rating) {
	var r models.Rating
	status := h.JSON(http.MethodPost, "/api/ratings", acc.Token, map[string]any{
		"trade_id": tradeID,
		"score":    score,
		"comment":  " todo bien ",
	}, &r)
	return status, &r
}

func TestRating_AfterCompletion(t *testing.T) {
	h := servertest.New(t)
	alice, bob, carol := h.Signup("Alice"), h.Signup("Bob"), h.Signup("Carol")
	tradeID := tradeBetween(t, h, alice, bob)

	status, _ := rate(h, alice, tradeID, 5)
	assert.Equal(t, http.StatusConflict, status, "pending trades cannot be rated")

	complete(t, h, tradeID, alice, bob)

	status, r := rate(h, alice, tradeID, 5)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, bob.User.ID, r.RatedID)
	assert.Equal(t, "todo bien", r.Comment)

	status, _ = rate(h, alice, tradeID, 4)
	assert.Equal(t, http.StatusConflict, status, "one rating per rater")

	status, _ = rate(h, carol, tradeID, 1)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = rate(h, bob, tradeID, 0)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = rate(h, bob, uuid.New(), 3)
	assert.Equal(t, http.StatusNotFound, status)

	status, r = rate(h, bob, tradeID, 3)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, alice.User.ID, r.RatedID)

	var got ratingsResponse
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/ratings/user/"+bob.User.ID.String(), "", nil, &got))
	require.Len(t, got.Ratings, 1)
	assert.Equal(t, models.Reputation{Average: 5, Count: 1}, got.Reputation)
	require.NotNil(t, got.Ratings[0].Rater)
	assert.Equal(t, "Alice", got.Ratings[0].Rater.Name)

	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/users/"+alice.User.ID.String()+"/ratings", "", nil, &got))
	assert.Equal(t, models.Reputation{Average: 3, Count: 1}, got.Reputation)

	status, _ = h.Do(http.MethodGet, "/api/ratings/user/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	types := h.Events.Types()
	assert.Equal(t, events.RatingCreated, types[len(types)-1])
}
