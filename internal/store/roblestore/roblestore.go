// Package roblestore persists records in ROBLE tables. ROBLE only offers
// equality reads and single-row writes, so uniqueness and version checks are
// read-then-write and the remaining filters run in memory.
package roblestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/reqctx"
	"github.com/rajivgeraev/swaply-api/internal/roble"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

// ROBLE table names
const (
	TableUsers     = "usuarios"
	TableProducts  = "productos"
	TableTrades    = "trueques"
	TableRatings   = "calificaciones"
	TableMessages  = "mensajes"
	TableFavorites = "favoritos"
)

const idColumn = "id"

// columns lists every column per table; replace writes the ones a model
// omitted as null so cleared optional fields do not keep stale values
var columns = map[string][]string{
	TableUsers:    {"email", "name", "bio", "avatar_url", "location", "role", "is_active", "created_at", "updated_at"},
	TableProducts: {"owner_id", "title", "description", "category", "condition", "wanted", "image_url", "image_public_id", "status", "created_at", "updated_at"},
	TableTrades: {"proposer_id", "receiver_id", "offered_product_id", "requested_product_id", "message", "status",
		"proposer_confirmed", "receiver_confirmed", "version", "created_at", "updated_at", "completed_at"},
}

// Store implements store.Store on top of the ROBLE database API
type Store struct {
	client  *roble.Client
	service *roble.TokenSource
}

var _ store.Store = (*Store)(nil)

// New creates a store. Calls use the caller's token from the context and
// fall back to the service account.
func New(client *roble.Client, service *roble.TokenSource) *Store {
	return &Store{client: client, service: service}
}

// withToken runs fn with the request credential, or with the service token.
// A 401 on the service token invalidates it and retries once.
func (s *Store) withToken(ctx context.Context, fn func(token string) error) error {
	if token, ok := reqctx.AccessToken(ctx); ok {
		return translate(fn(token))
	}

	token, err := s.service.Token(ctx)
	if err != nil {
		return fmt.Errorf("roblestore: service token: %w", err)
	}
	err = fn(token)
	if roble.IsUnauthorized(err) {
		logger.FromContext(ctx).Debug("service token rejected, renewing")
		s.service.Invalidate(token)
		if token, err = s.service.Token(ctx); err != nil {
			return fmt.Errorf("roblestore: service token: %w", err)
		}
		err = fn(token)
	}
	return translate(err)
}

func translate(err error) error {
	if roble.IsStatus(err, http.StatusNotFound) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) read(ctx context.Context, table string, filters map[string]string) ([]map[string]any, error) {
	var rows []map[string]any
	err := s.withToken(ctx, func(token string) error {
		var err error
		rows, err = s.client.Read(ctx, token, table, filters)
		return err
	})
	return rows, err
}

func (s *Store) insert(ctx context.Context, table string, v any) error {
	record, err := toRecord(v)
	if err != nil {
		return err
	}
	return s.withToken(ctx, func(token string) error {
		res, err := s.client.Insert(ctx, token, table, []map[string]any{record})
		if err != nil {
			return err
		}
		if len(res.Inserted) == 0 {
			return store.ErrConflict
		}
		return nil
	})
}

func (s *Store) update(ctx context.Context, table string, id uuid.UUID, updates map[string]any) error {
	delete(updates, idColumn)
	return s.withToken(ctx, func(token string) error {
		return s.client.Update(ctx, token, table, idColumn, id.String(), updates)
	})
}

func (s *Store) replace(ctx context.Context, table string, id uuid.UUID, v any) error {
	record, err := toRecord(v)
	if err != nil {
		return err
	}
	for _, col := range columns[table] {
		if _, ok := record[col]; !ok {
			record[col] = nil
		}
	}
	return s.update(ctx, table, id, record)
}

func (s *Store) remove(ctx context.Context, table string, id string) error {
	return s.withToken(ctx, func(token string) error {
		return s.client.Delete(ctx, token, table, idColumn, id)
	})
}

// toRecord turns a model into the column map ROBLE stores
func toRecord(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("roblestore: encode record: %w", err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("roblestore: encode record: %w", err)
	}
	return record, nil
}

// fromRows decodes ROBLE rows into models; unknown columns such as _id are ignored
func fromRows[T any](rows []map[string]any) ([]T, error) {
	out := make([]T, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("roblestore: decode rows: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("roblestore: decode rows: %w", err)
	}
	return out, nil
}

func readAll[T any](ctx context.Context, s *Store, table string, filters map[string]string) ([]T, error) {
	rows, err := s.read(ctx, table, filters)
	if err != nil {
		return nil, err
	}
	return fromRows[T](rows)
}

func readOne[T any](ctx context.Context, s *Store, table string, filters map[string]string) (*T, error) {
	items, err := readAll[T](ctx, s, table, filters)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return &items[0], nil
}

func byID(id uuid.UUID) map[string]string {
	return map[string]string{idColumn: id.String()}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.read(ctx, TableUsers, map[string]string{idColumn: uuid.Nil.String()})
	return err
}

func (s *Store) Close() {}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(u.Email)
	_, err := s.GetUserByEmail(ctx, u.Email)
	switch {
	case err == nil:
		return store.ErrConflict
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	return s.insert(ctx, TableUsers, u)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return readOne[models.User](ctx, s, TableUsers, byID(id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return readOne[models.User](ctx, s, TableUsers, map[string]string{"email": strings.ToLower(email)})
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	return s.replace(ctx, TableUsers, u.ID, u)
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]models.User, int, error) {
	users, err := readAll[models.User](ctx, s, TableUsers, nil)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return store.Paginate(users, limit, offset), len(users), nil
}

// Products

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	stored := *p
	stored.Owner = nil
	return s.insert(ctx, TableProducts, &stored)
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return readOne[models.Product](ctx, s, TableProducts, byID(id))
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	stored := *p
	stored.Owner = nil
	return s.replace(ctx, TableProducts, p.ID, &stored)
}

// SetProductStatus checks and writes in two calls; ROBLE has no conditional update
func (s *Store) SetProductStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error {
	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != from {
		return store.ErrConflict
	}
	return s.update(ctx, TableProducts, id, map[string]any{
		"status":     to,
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.remove(ctx, TableProducts, id.String()); err != nil {
		return err
	}
	favs, err := readAll[models.Favorite](ctx, s, TableFavorites, map[string]string{"product_id": id.String()})
	if err != nil {
		return err
	}
	for _, f := range favs {
		if err := s.remove(ctx, TableFavorites, f.ID.String()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	filters := map[string]string{}
	if f.OwnerID != nil {
		filters["owner_id"] = f.OwnerID.String()
	}
	if f.Category != "" {
		filters["category"] = f.Category
	}
	if len(f.Statuses) == 1 {
		filters["status"] = f.Statuses[0]
	}

	all, err := readAll[models.Product](ctx, s, TableProducts, filters)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]models.Product, 0, len(all))
	for _, p := range all {
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

func stripTrade(t models.Trade) models.Trade {
	t.OfferedProduct, t.RequestedProduct, t.Proposer, t.Receiver = nil, nil, nil, nil
	return t
}

func (s *Store) CreateTrade(ctx context.Context, t *models.Trade) error {
	stored := stripTrade(*t)
	return s.insert(ctx, TableTrades, &stored)
}

func (s *Store) GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	return readOne[models.Trade](ctx, s, TableTrades, byID(id))
}

func (s *Store) UpdateTrade(ctx context.Context, t *models.Trade, expectedVersion int) error {
	current, err := s.GetTrade(ctx, t.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return store.ErrConflict
	}
	stored := stripTrade(*t)
	return s.replace(ctx, TableTrades, t.ID, &stored)
}

func (s *Store) ListTrades(ctx context.Context, f store.TradeFilter) ([]models.Trade, error) {
	var (
		trades []models.Trade
		err    error
	)
	status := map[string]string{}
	if f.Status != "" {
		status["status"] = f.Status
	}

	switch {
	case f.UserID != nil && f.Direction == store.DirectionIncoming:
		trades, err = readAll[models.Trade](ctx, s, TableTrades, with(status, "receiver_id", f.UserID.String()))
	case f.UserID != nil && f.Direction == store.DirectionOutgoing:
		trades, err = readAll[models.Trade](ctx, s, TableTrades, with(status, "proposer_id", f.UserID.String()))
	case f.UserID != nil:
		trades, err = s.readEither(ctx, TableTrades, status, "proposer_id", "receiver_id", f.UserID.String())
	case f.ProductID != nil:
		trades, err = s.readEither(ctx, TableTrades, status, "offered_product_id", "requested_product_id", f.ProductID.String())
	default:
		trades, err = readAll[models.Trade](ctx, s, TableTrades, status)
	}
	if err != nil {
		return nil, err
	}

	matched := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if store.MatchesTrade(&t, f) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// readEither reads trades where colA or colB equals value, without duplicates
func (s *Store) readEither(ctx context.Context, table string, base map[string]string, colA, colB, value string) ([]models.Trade, error) {
	first, err := readAll[models.Trade](ctx, s, table, with(base, colA, value))
	if err != nil {
		return nil, err
	}
	second, err := readAll[models.Trade](ctx, s, table, with(base, colB, value))
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(first))
	for _, t := range first {
		seen[t.ID] = true
	}
	for _, t := range second {
		if !seen[t.ID] {
			first = append(first, t)
		}
	}
	return first, nil
}

func with(base map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

// Ratings

func (s *Store) CreateRating(ctx context.Context, r *models.Rating) error {
	existing, err := readAll[models.Rating](ctx, s, TableRatings, map[string]string{
		"trade_id": r.TradeID.String(),
		"rater_id": r.RaterID.String(),
	})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return store.ErrConflict
	}
	stored := *r
	stored.Rater = nil
	return s.insert(ctx, TableRatings, &stored)
}

func (s *Store) ListRatingsFor(ctx context.Context, ratedID uuid.UUID) ([]models.Rating, error) {
	ratings, err := readAll[models.Rating](ctx, s, TableRatings, map[string]string{"rated_id": ratedID.String()})
	if err != nil {
		return nil, err
	}
	sort.Slice(ratings, func(i, j int) bool {
		return ratings[i].CreatedAt.After(ratings[j].CreatedAt)
	})
	return ratings, nil
}

// Messages

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	return s.insert(ctx, TableMessages, m)
}

func (s *Store) messagesFrom(ctx context.Context, sender, receiver uuid.UUID) ([]models.Message, error) {
	return readAll[models.Message](ctx, s, TableMessages, map[string]string{
		"sender_id":   sender.String(),
		"receiver_id": receiver.String(),
	})
}

func (s *Store) ListConversation(ctx context.Context, a, b uuid.UUID, limit int) ([]models.Message, error) {
	ab, err := s.messagesFrom(ctx, a, b)
	if err != nil {
		return nil, err
	}
	ba, err := s.messagesFrom(ctx, b, a)
	if err != nil {
		return nil, err
	}
	msgs := append(ab, ba...)
	sortMessages(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *Store) ListMessagesOf(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	sent, err := readAll[models.Message](ctx, s, TableMessages, map[string]string{"sender_id": userID.String()})
	if err != nil {
		return nil, err
	}
	received, err := readAll[models.Message](ctx, s, TableMessages, map[string]string{"receiver_id": userID.String()})
	if err != nil {
		return nil, err
	}
	msgs := append(sent, received...)
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

func (s *Store) MarkRead(ctx context.Context, receiverID, senderID uuid.UUID) (int, error) {
	msgs, err := s.messagesFrom(ctx, senderID, receiverID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.IsRead {
			continue
		}
		if err := s.update(ctx, TableMessages, m.ID, map[string]any{"is_read": true}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Favorites

func (s *Store) AddFavorite(ctx context.Context, f *models.Favorite) error {
	ok, err := s.IsFavorite(ctx, f.UserID, f.ProductID)
	if err != nil {
		return err
	}
	if ok {
		return store.ErrConflict
	}
	stored := *f
	stored.Product = nil
	return s.insert(ctx, TableFavorites, &stored)
}

func (s *Store) findFavorite(ctx context.Context, userID, productID uuid.UUID) ([]models.Favorite, error) {
	return readAll[models.Favorite](ctx, s, TableFavorites, map[string]string{
		"user_id":    userID.String(),
		"product_id": productID.String(),
	})
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	favs, err := s.findFavorite(ctx, userID, productID)
	if err != nil {
		return err
	}
	if len(favs) == 0 {
		return store.ErrNotFound
	}
	for _, f := range favs {
		if err := s.remove(ctx, TableFavorites, f.ID.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.Favorite, error) {
	favs, err := readAll[models.Favorite](ctx, s, TableFavorites, map[string]string{"user_id": userID.String()})
	if err != nil {
		return nil, err
	}
	sort.Slice(favs, func(i, j int) bool {
		return favs[i].CreatedAt.After(favs[j].CreatedAt)
	})
	return favs, nil
}

func (s *Store) IsFavorite(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	favs, err := s.findFavorite(ctx, userID, productID)
	if err != nil {
		return false, err
	}
	return len(favs) > 0, nil
}

// Stats

func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	users, err := s.read(ctx, TableUsers, nil)
	if err != nil {
		return nil, err
	}
	products, err := readAll[models.Product](ctx, s, TableProducts, nil)
	if err != nil {
		return nil, err
	}
	trades, err := readAll[models.Trade](ctx, s, TableTrades, nil)
	if err != nil {
		return nil, err
	}

	stats := &store.Stats{Users: len(users), Products: map[string]int{}, Trades: map[string]int{}}
	for _, p := range products {
		stats.Products[p.Status]++
	}
	for _, t := range trades {
		stats.Trades[t.Status]++
	}
	return stats, nil
}
