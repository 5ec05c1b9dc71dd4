package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/rajivgeraev/swaply-api/internal/models"
)

func TestPage(t *testing.T) {
	assert.Equal(t, 20, Page(0, 20, 100))
	assert.Equal(t, 20, Page(-3, 20, 100))
	assert.Equal(t, 5, Page(5, 20, 100))
	assert.Equal(t, 100, Page(500, 20, 100))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Paginate(items, 0, 0))
	assert.Equal(t, []int{2, 3}, Paginate(items, 2, 1))
	assert.Equal(t, []int{5}, Paginate(items, 10, 4))
	assert.Equal(t, []int{}, Paginate(items, 2, 5))
}

func TestMatchesTrade(t *testing.T) {
	proposer, receiver := uuid.New(), uuid.New()
	offered := uuid.New()
	tr := &models.Trade{ProposerID: proposer, ReceiverID: receiver, OfferedProductID: offered,
		RequestedProductID: uuid.New(), Status: models.TradePending}

	assert.True(t, MatchesTrade(tr, TradeFilter{}))
	assert.True(t, MatchesTrade(tr, TradeFilter{UserID: &receiver, Direction: DirectionIncoming}))
	assert.False(t, MatchesTrade(tr, TradeFilter{UserID: &proposer, Direction: DirectionIncoming}))
	assert.True(t, MatchesTrade(tr, TradeFilter{UserID: &proposer, Direction: DirectionOutgoing}))
	assert.True(t, MatchesTrade(tr, TradeFilter{UserID: &proposer}))
	assert.False(t, MatchesTrade(tr, TradeFilter{Status: models.TradeAccepted}))
	assert.True(t, MatchesTrade(tr, TradeFilter{ProductID: &offered}))
}

func TestMatchesProduct(t *testing.T) {
	owner := uuid.New()
	p := &models.Product{OwnerID: owner, Category: "books", Condition: models.ConditionUsed, Status: models.ProductAvailable}

	assert.True(t, MatchesProduct(p, ProductFilter{}))
	assert.True(t, MatchesProduct(p, ProductFilter{OwnerID: &owner, Category: "books"}))
	assert.False(t, MatchesProduct(p, ProductFilter{ExcludeOwner: &owner}))
	assert.False(t, MatchesProduct(p, ProductFilter{Condition: models.ConditionNew}))
	assert.True(t, MatchesProduct(p, ProductFilter{Statuses: []string{models.ProductReserved, models.ProductAvailable}}))
	assert.False(t, MatchesProduct(p, ProductFilter{Statuses: []string{models.ProductTraded}}))
}
