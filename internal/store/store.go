// Package store defines the persistence contract shared by the memory, ROBLE
// and PostgreSQL backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned on uniqueness and version violations
	ErrConflict = errors.New("store: conflict")
)

// Trade directions relative to TradeFilter.UserID
const (
	DirectionAll      = "all"
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// ProductFilter selects catalog entries. Zero values match everything.
type ProductFilter struct {
	OwnerID      *uuid.UUID
	ExcludeOwner *uuid.UUID
	Category     string
	Condition    string
	Statuses     []string
	Limit        int
	Offset       int
}

// TradeFilter selects trades. With a nil UserID and ProductID every trade matches.
type TradeFilter struct {
	UserID    *uuid.UUID
	Direction string
	Status    string
	ProductID *uuid.UUID
}

// Stats are the counters shown on the admin dashboard
type Stats struct {
	Users    int            `json:"users"`
	Products map[string]int `json:"products"`
	Trades   map[string]int `json:"trades"`
}

type Users interface {
	// CreateUser fails with ErrConflict when the email is taken
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, int, error)
}

type Products interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	// SetProductStatus moves a product from status from to status to, failing
	// with ErrConflict when it is not in from
	SetProductStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	// ListProducts returns one page, newest first, and the total number of matches
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error)
}

type Trades interface {
	CreateTrade(ctx context.Context, t *models.Trade) error
	GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error)
	// UpdateTrade stores t only if the stored version still equals expectedVersion,
	// otherwise it fails with ErrConflict
	UpdateTrade(ctx context.Context, t *models.Trade, expectedVersion int) error
	// ListTrades returns matching trades, newest first
	ListTrades(ctx context.Context, f TradeFilter) ([]models.Trade, error)
}

type Ratings interface {
	// CreateRating fails with ErrConflict when the rater already rated the trade
	CreateRating(ctx context.Context, r *models.Rating) error
	// ListRatingsFor returns the ratings a user received, newest first
	ListRatingsFor(ctx context.Context, ratedID uuid.UUID) ([]models.Rating, error)
}

type Messages interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	// ListConversation returns the last limit messages between a and b, oldest first
	ListConversation(ctx context.Context, a, b uuid.UUID, limit int) ([]models.Message, error)
	// ListMessagesOf returns every message sent or received by userID, newest first
	ListMessagesOf(ctx context.Context, userID uuid.UUID) ([]models.Message, error)
	// MarkRead flags the unread messages from senderID to receiverID as read
	MarkRead(ctx context.Context, receiverID, senderID uuid.UUID) (int, error)
}

type Favorites interface {
	// AddFavorite fails with ErrConflict when the pair already exists
	AddFavorite(ctx context.Context, f *models.Favorite) error
	RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error
	// ListFavorites returns a user's favorites, newest first
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.Favorite, error)
	IsFavorite(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

// Store is everything the services persist
type Store interface {
	Users
	Products
	Trades
	Ratings
	Messages
	Favorites

	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Close()
}

// Page clamps a requested page size
func Page(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// MatchesTrade reports whether t satisfies f; backends that filter in memory share it
func MatchesTrade(t *models.Trade, f TradeFilter) bool {
	if f.UserID != nil {
		switch f.Direction {
		case DirectionIncoming:
			if t.ReceiverID != *f.UserID {
				return false
			}
		case DirectionOutgoing:
			if t.ProposerID != *f.UserID {
				return false
			}
		default:
			if !t.IsParticipant(*f.UserID) {
				return false
			}
		}
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.ProductID != nil && !t.Involves(*f.ProductID) {
		return false
	}
	return true
}

// MatchesProduct reports whether p satisfies f, ignoring pagination
func MatchesProduct(p *models.Product, f ProductFilter) bool {
	if f.OwnerID != nil && p.OwnerID != *f.OwnerID {
		return false
	}
	if f.ExcludeOwner != nil && p.OwnerID == *f.ExcludeOwner {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Condition != "" && p.Condition != f.Condition {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if p.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Paginate slices items for offset and limit; a limit of zero means no limit
func Paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
