// Package storetest is the behavioural contract every store.Store backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

// Factory returns an empty store; cleanup is registered on t
type Factory func(t *testing.T) store.Store

// base is truncated to microseconds, the finest precision every backend keeps
var base = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

// NewUser builds a user with a unique email
func NewUser(name string) *models.User {
	id := uuid.New()
	return &models.User{
		ID:        id,
		Email:     name + "-" + id.String()[:8] + "@example.com",
		Name:      name,
		Role:      models.RoleUser,
		IsActive:  true,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

// NewProduct builds an available product owned by owner
func NewProduct(owner uuid.UUID, title, category string, created time.Time) *models.Product {
	return &models.Product{
		ID:          uuid.New(),
		OwnerID:     owner,
		Title:       title,
		Description: "a " + title,
		Category:    category,
		Condition:   models.ConditionGood,
		Status:      models.ProductAvailable,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

// NewTrade builds a pending trade
func NewTrade(proposer, receiver, offered, requested uuid.UUID, created time.Time) *models.Trade {
	return &models.Trade{
		ID:                 uuid.New(),
		ProposerID:         proposer,
		ReceiverID:         receiver,
		OfferedProductID:   offered,
		RequestedProductID: requested,
		Status:             models.TradePending,
		Version:            1,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func ids[T any](items []T, id func(T) uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

// Run executes the contract against fresh stores from newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Products", func(t *testing.T) { testProducts(t, newStore(t)) })
	t.Run("Trades", func(t *testing.T) { testTrades(t, newStore(t)) })
	t.Run("Ratings", func(t *testing.T) { testRatings(t, newStore(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("Favorites", func(t *testing.T) { testFavorites(t, newStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore(t)) })
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	ana := NewUser("ana")
	require.NoError(t, s.CreateUser(ctx, ana))

	dup := NewUser("other")
	dup.Email = ana.Email
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrConflict)

	got, err := s.GetUser(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, ana.Email, got.Email)
	assert.Equal(t, "ana", got.Name)
	assert.True(t, got.IsActive)

	byEmail, err := s.GetUserByEmail(ctx, ana.Email)
	require.NoError(t, err)
	assert.Equal(t, ana.ID, byEmail.ID)

	_, err = s.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got.Bio = "collector"
	got.IsActive = false
	require.NoError(t, s.UpdateUser(ctx, got))
	got, err = s.GetUser(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "collector", got.Bio)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, s.UpdateUser(ctx, NewUser("ghost")), store.ErrNotFound)

	bob := NewUser("bob")
	bob.CreatedAt = at(5)
	require.NoError(t, s.CreateUser(ctx, bob))

	users, total, err := s.ListUsers(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)
}

func testProducts(t *testing.T, s store.Store) {
	ctx := context.Background()
	ana, bob := NewUser("ana"), NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, ana))
	require.NoError(t, s.CreateUser(ctx, bob))

	bike := NewProduct(ana.ID, "Bike", "sports", at(1))
	lamp := NewProduct(ana.ID, "Lamp", "home", at(2))
	ball := NewProduct(bob.ID, "Ball", "sports", at(3))
	sold := NewProduct(bob.ID, "Chair", "home", at(4))
	sold.Status = models.ProductTraded
	for _, p := range []*models.Product{bike, lamp, ball, sold} {
		require.NoError(t, s.CreateProduct(ctx, p))
	}

	got, err := s.GetProduct(ctx, bike.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bike", got.Title)
	assert.Equal(t, ana.ID, got.OwnerID)
	assert.True(t, got.CreatedAt.Equal(bike.CreatedAt))

	_, err = s.GetProduct(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	productID := func(p models.Product) uuid.UUID { return p.ID }

	all, total, err := s.ListProducts(ctx, store.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []uuid.UUID{sold.ID, ball.ID, lamp.ID, bike.ID}, ids(all, productID))

	available, total, err := s.ListProducts(ctx, store.ProductFilter{Statuses: []string{models.ProductAvailable}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, available, 3)

	sports, _, err := s.ListProducts(ctx, store.ProductFilter{Category: "sports"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ball.ID, bike.ID}, ids(sports, productID))

	owned, _, err := s.ListProducts(ctx, store.ProductFilter{OwnerID: &ana.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{lamp.ID, bike.ID}, ids(owned, productID))

	others, _, err := s.ListProducts(ctx, store.ProductFilter{ExcludeOwner: &ana.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sold.ID, ball.ID}, ids(others, productID))

	page, total, err := s.ListProducts(ctx, store.ProductFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []uuid.UUID{ball.ID, lamp.ID}, ids(page, productID))

	past, total, err := s.ListProducts(ctx, store.ProductFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, past)

	got.Title = "Road bike"
	got.Status = models.ProductReserved
	require.NoError(t, s.UpdateProduct(ctx, got))
	got, err = s.GetProduct(ctx, bike.ID)
	require.NoError(t, err)
	assert.Equal(t, "Road bike", got.Title)
	assert.Equal(t, models.ProductReserved, got.Status)

	assert.ErrorIs(t, s.UpdateProduct(ctx, NewProduct(ana.ID, "x", "y", base)), store.ErrNotFound)

	require.NoError(t, s.SetProductStatus(ctx, ball.ID, models.ProductAvailable, models.ProductReserved, at(5)))
	got, err = s.GetProduct(ctx, ball.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductReserved, got.Status)
	assert.True(t, got.UpdatedAt.Equal(at(5)))
	assert.Equal(t, "Ball", got.Title)
	assert.ErrorIs(t, s.SetProductStatus(ctx, ball.ID, models.ProductAvailable, models.ProductReserved, at(6)), store.ErrConflict)
	assert.ErrorIs(t, s.SetProductStatus(ctx, uuid.New(), models.ProductAvailable, models.ProductReserved, at(6)), store.ErrNotFound)

	require.NoError(t, s.DeleteProduct(ctx, lamp.ID))
	_, err = s.GetProduct(ctx, lamp.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteProduct(ctx, lamp.ID), store.ErrNotFound)
}

// fixture is the minimum set of rows trades, ratings, messages and
// favorites can reference
type fixture struct {
	ana, bob, eve *models.User
	p1, p2, p3    *models.Product
}

func seed(t *testing.T, s store.Store) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{ana: NewUser("ana"), bob: NewUser("bob"), eve: NewUser("eve")}
	for _, u := range []*models.User{f.ana, f.bob, f.eve} {
		require.NoError(t, s.CreateUser(ctx, u))
	}
	f.p1 = NewProduct(f.ana.ID, "Bike", "sports", at(0))
	f.p2 = NewProduct(f.bob.ID, "Guitar", "music", at(0))
	f.p3 = NewProduct(f.eve.ID, "Lamp", "home", at(0))
	for _, p := range []*models.Product{f.p1, f.p2, f.p3} {
		require.NoError(t, s.CreateProduct(ctx, p))
	}
	return f
}

func testTrades(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	ana, bob, eve := f.ana.ID, f.bob.ID, f.eve.ID
	p1, p2, p3 := f.p1.ID, f.p2.ID, f.p3.ID

	first := NewTrade(ana, bob, p1, p2, at(1))
	first.Message = "swap?"
	second := NewTrade(eve, bob, p3, p2, at(2))
	third := NewTrade(bob, ana, p2, p1, at(3))
	third.Status = models.TradeRejected
	for _, tr := range []*models.Trade{first, second, third} {
		require.NoError(t, s.CreateTrade(ctx, tr))
	}

	got, err := s.GetTrade(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "swap?", got.Message)
	assert.Equal(t, 1, got.Version)
	assert.Nil(t, got.CompletedAt)

	_, err = s.GetTrade(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	tradeID := func(tr models.Trade) uuid.UUID { return tr.ID }

	incoming, err := s.ListTrades(ctx, store.TradeFilter{UserID: &bob, Direction: store.DirectionIncoming})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{second.ID, first.ID}, ids(incoming, tradeID))

	outgoing, err := s.ListTrades(ctx, store.TradeFilter{UserID: &bob, Direction: store.DirectionOutgoing})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{third.ID}, ids(outgoing, tradeID))

	pending, err := s.ListTrades(ctx, store.TradeFilter{UserID: &bob, Status: models.TradePending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	touching, err := s.ListTrades(ctx, store.TradeFilter{ProductID: &p3})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{second.ID}, ids(touching, tradeID))

	none, err := s.ListTrades(ctx, store.TradeFilter{UserID: &eve, Direction: store.DirectionIncoming})
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, got.Apply(models.ActionAccept, bob, at(10)))
	require.NoError(t, s.UpdateTrade(ctx, got, 1))

	stale := *first
	require.NoError(t, stale.Apply(models.ActionCancel, ana, at(11)))
	assert.ErrorIs(t, s.UpdateTrade(ctx, &stale, 1), store.ErrConflict)

	got, err = s.GetTrade(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeAccepted, got.Status)
	assert.Equal(t, 2, got.Version)

	require.NoError(t, got.Apply(models.ActionConfirm, ana, at(12)))
	require.NoError(t, s.UpdateTrade(ctx, got, 2))
	require.NoError(t, got.Apply(models.ActionConfirm, bob, at(13)))
	require.NoError(t, s.UpdateTrade(ctx, got, 3))

	got, err = s.GetTrade(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeCompleted, got.Status)
	assert.True(t, got.ProposerConfirmed)
	assert.True(t, got.ReceiverConfirmed)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(at(13)))

	assert.ErrorIs(t, s.UpdateTrade(ctx, NewTrade(ana, bob, p1, p2, base), 1), store.ErrNotFound)
}

func testRatings(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	ana, bob, eve := f.ana.ID, f.bob.ID, f.eve.ID

	trade := NewTrade(ana, bob, f.p1.ID, f.p2.ID, at(0))
	other := NewTrade(eve, bob, f.p3.ID, f.p2.ID, at(0))
	require.NoError(t, s.CreateTrade(ctx, trade))
	require.NoError(t, s.CreateTrade(ctx, other))

	r1 := &models.Rating{ID: uuid.New(), TradeID: trade.ID, RaterID: ana, RatedID: bob, Score: 5, Comment: "great", CreatedAt: at(1)}
	require.NoError(t, s.CreateRating(ctx, r1))

	dup := *r1
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreateRating(ctx, &dup), store.ErrConflict)

	r2 := &models.Rating{ID: uuid.New(), TradeID: trade.ID, RaterID: bob, RatedID: ana, Score: 3, CreatedAt: at(2)}
	require.NoError(t, s.CreateRating(ctx, r2))
	r3 := &models.Rating{ID: uuid.New(), TradeID: other.ID, RaterID: eve, RatedID: bob, Score: 4, CreatedAt: at(3)}
	require.NoError(t, s.CreateRating(ctx, r3))

	forBob, err := s.ListRatingsFor(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{r3.ID, r1.ID}, ids(forBob, func(r models.Rating) uuid.UUID { return r.ID }))
	assert.Equal(t, "great", forBob[1].Comment)
	assert.Equal(t, models.Reputation{Average: 4.5, Count: 2}, models.ComputeReputation(forBob))

	none, err := s.ListRatingsFor(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	ana, bob, eve := f.ana.ID, f.bob.ID, f.eve.ID

	msg := func(from, to uuid.UUID, text string, minute int) *models.Message {
		m := &models.Message{ID: uuid.New(), SenderID: from, ReceiverID: to, Text: text, CreatedAt: at(minute)}
		require.NoError(t, s.CreateMessage(ctx, m))
		return m
	}
	m1 := msg(ana, bob, "hi", 1)
	m2 := msg(bob, ana, "hello", 2)
	m3 := msg(ana, bob, "trade?", 3)
	m4 := msg(eve, ana, "psst", 4)

	messageID := func(m models.Message) uuid.UUID { return m.ID }

	conv, err := s.ListConversation(ctx, bob, ana, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m1.ID, m2.ID, m3.ID}, ids(conv, messageID))

	last, err := s.ListConversation(ctx, ana, bob, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m2.ID, m3.ID}, ids(last, messageID))

	mine, err := s.ListMessagesOf(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m4.ID, m3.ID, m2.ID, m1.ID}, ids(mine, messageID))

	n, err := s.MarkRead(ctx, bob, ana)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.MarkRead(ctx, bob, ana)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	conv, err = s.ListConversation(ctx, ana, bob, 0)
	require.NoError(t, err)
	for _, m := range conv {
		assert.Equal(t, m.ReceiverID == bob, m.IsRead, m.Text)
	}
}

func testFavorites(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	ana := f.ana.ID
	p1, p2 := f.p2.ID, f.p3.ID

	f1 := &models.Favorite{ID: uuid.New(), UserID: ana, ProductID: p1, CreatedAt: at(1)}
	f2 := &models.Favorite{ID: uuid.New(), UserID: ana, ProductID: p2, CreatedAt: at(2)}
	require.NoError(t, s.AddFavorite(ctx, f1))
	require.NoError(t, s.AddFavorite(ctx, f2))

	dup := *f1
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.AddFavorite(ctx, &dup), store.ErrConflict)

	favs, err := s.ListFavorites(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p2, p1}, ids(favs, func(f models.Favorite) uuid.UUID { return f.ProductID }))

	ok, err := s.IsFavorite(ctx, ana, p1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.RemoveFavorite(ctx, ana, p1))
	assert.ErrorIs(t, s.RemoveFavorite(ctx, ana, p1), store.ErrNotFound)

	ok, err = s.IsFavorite(ctx, ana, p1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeleteProduct(ctx, p2))
	favs, err = s.ListFavorites(ctx, ana)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	ana, bob := NewUser("ana"), NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, ana))
	require.NoError(t, s.CreateUser(ctx, bob))

	p1 := NewProduct(ana.ID, "Bike", "sports", at(1))
	p2 := NewProduct(bob.ID, "Ball", "sports", at(2))
	p2.Status = models.ProductReserved
	require.NoError(t, s.CreateProduct(ctx, p1))
	require.NoError(t, s.CreateProduct(ctx, p2))
	require.NoError(t, s.CreateTrade(ctx, NewTrade(ana.ID, bob.ID, p1.ID, p2.ID, at(3))))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Products[models.ProductAvailable])
	assert.Equal(t, 1, stats.Products[models.ProductReserved])
	assert.Equal(t, 1, stats.Trades[models.TradePending])
}
