// Package memstore keeps everything in process memory. It backs the tests
// and STORE_BACKEND=memory demos.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

// Store is a mutex guarded in-memory store.Store
type Store struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]models.User
	products  map[uuid.UUID]models.Product
	trades    map[uuid.UUID]models.Trade
	ratings   map[uuid.UUID]models.Rating
	messages  map[uuid.UUID]models.Message
	favorites map[uuid.UUID]models.Favorite
}

var _ store.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		users:     make(map[uuid.UUID]models.User),
		products:  make(map[uuid.UUID]models.Product),
		trades:    make(map[uuid.UUID]models.Trade),
		ratings:   make(map[uuid.UUID]models.Rating),
		messages:  make(map[uuid.UUID]models.Message),
		favorites: make(map[uuid.UUID]models.Favorite),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

// Users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email || existing.ID == u.ID {
			return store.ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) ListUsers(_ context.Context, limit, offset int) ([]models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID.String() < users[j].ID.String()
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return store.Paginate(users, limit, offset), len(users), nil
}

// Products

func (s *Store) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return store.ErrConflict
	}
	stored := *p
	stored.Owner = nil
	s.products[p.ID] = stored
	return nil
}

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return store.ErrNotFound
	}
	stored := *p
	stored.Owner = nil
	s.products[p.ID] = stored
	return nil
}

func (s *Store) SetProductStatus(_ context.Context, id uuid.UUID, from, to string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Status != from {
		return store.ErrConflict
	}
	p.Status, p.UpdatedAt = to, at
	s.products[id] = p
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	for fid, f := range s.favorites {
		if f.ProductID == id {
			delete(s.favorites, fid)
		}
	}
	return nil
}

func (s *Store) ListProducts(_ context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.Product
	for _, p := range s.products {
		if store.MatchesProduct(&p, f) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return store.Paginate(matched, f.Limit, f.Offset), len(matched), nil
}

// Trades

func (s *Store) CreateTrade(_ context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[t.ID]; ok {
		return store.ErrConflict
	}
	s.trades[t.ID] = stripTrade(*t)
	return nil
}

func (s *Store) GetTrade(_ context.Context, id uuid.UUID) (*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) UpdateTrade(_ context.Context, t *models.Trade, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.trades[t.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrConflict
	}
	s.trades[t.ID] = stripTrade(*t)
	return nil
}

func (s *Store) ListTrades(_ context.Context, f store.TradeFilter) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trades := []models.Trade{}
	for _, t := range s.trades {
		if store.MatchesTrade(&t, f) {
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].ID.String() < trades[j].ID.String()
		}
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})
	return trades, nil
}

// stripTrade drops the enrichment pointers before storing
func stripTrade(t models.Trade) models.Trade {
	t.OfferedProduct, t.RequestedProduct, t.Proposer, t.Receiver = nil, nil, nil, nil
	return t
}

// Ratings

func (s *Store) CreateRating(_ context.Context, r *models.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.ratings {
		if existing.TradeID == r.TradeID && existing.RaterID == r.RaterID {
			return store.ErrConflict
		}
	}
	stored := *r
	stored.Rater = nil
	s.ratings[r.ID] = stored
	return nil
}

func (s *Store) ListRatingsFor(_ context.Context, ratedID uuid.UUID) ([]models.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ratings := []models.Rating{}
	for _, r := range s.ratings {
		if r.RatedID == ratedID {
			ratings = append(ratings, r)
		}
	}
	sort.Slice(ratings, func(i, j int) bool {
		return ratings[i].CreatedAt.After(ratings[j].CreatedAt)
	})
	return ratings, nil
}

// Messages

func (s *Store) CreateMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = *m
	return nil
}

func (s *Store) ListConversation(_ context.Context, a, b uuid.UUID, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := []models.Message{}
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			msgs = append(msgs, m)
		}
	}
	sortMessages(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *Store) ListMessagesOf(_ context.Context, userID uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := []models.Message{}
	for _, m := range s.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			msgs = append(msgs, m)
		}
	}
	sortMessages(msgs)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// sortMessages orders oldest first
func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID.String() < msgs[j].ID.String()
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func (s *Store) MarkRead(_ context.Context, receiverID, senderID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.messages {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.IsRead {
			m.IsRead = true
			s.messages[id] = m
			n++
		}
	}
	return n, nil
}

// Favorites

func (s *Store) AddFavorite(_ context.Context, f *models.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.favorites {
		if existing.UserID == f.UserID && existing.ProductID == f.ProductID {
			return store.ErrConflict
		}
	}
	stored := *f
	stored.Product = nil
	s.favorites[f.ID] = stored
	return nil
}

func (s *Store) RemoveFavorite(_ context.Context, userID, productID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.favorites {
		if f.UserID == userID && f.ProductID == productID {
			delete(s.favorites, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListFavorites(_ context.Context, userID uuid.UUID) ([]models.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	favs := []models.Favorite{}
	for _, f := range s.favorites {
		if f.UserID == userID {
			favs = append(favs, f)
		}
	}
	sort.Slice(favs, func(i, j int) bool {
		return favs[i].CreatedAt.After(favs[j].CreatedAt)
	})
	return favs, nil
}

func (s *Store) IsFavorite(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.favorites {
		if f.UserID == userID && f.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

// Stats

func (s *Store) Stats(context.Context) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &store.Stats{
		Users:    len(s.users),
		Products: map[string]int{},
		Trades:   map[string]int{},
	}
	for _, p := range s.products {
		stats.Products[p.Status]++
	}
	for _, t := range s.trades {
		stats.Trades[t.Status]++
	}
	return stats, nil
}
