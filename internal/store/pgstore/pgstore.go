// Package pgstore реализует хранилище на PostgreSQL поверх пула pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

const uniqueViolation = "23505"

// Store реализует store.Store на PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New оборачивает открытый пул
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// mapErr переводит ошибки драйвера в ошибки хранилища
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrConflict
	}
	return err
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Пользователи

const userColumns = `id, email, name, bio, avatar_url, location, role, is_active, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Bio, &u.AvatarURL, &u.Location,
		&u.Role, &u.IsActive, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(u.Email)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Email, u.Name, u.Bio, u.AvatarURL, u.Location,
		u.Role, u.IsActive, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	return expectOne(s.pool.Exec(ctx, `
		UPDATE users
		SET name = $2, bio = $3, avatar_url = $4, location = $5, role = $6,
		    is_active = $7, password_hash = $8, updated_at = $9
		WHERE id = $1`,
		u.ID, u.Name, u.Bio, u.AvatarURL, u.Location, u.Role, u.IsActive, u.PasswordHash, u.UpdatedAt))
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]models.User, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limitOrAll(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// limitOrAll превращает "без лимита" в значение для LIMIT
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// Товары

const productColumns = `id, owner_id, title, description, category, condition, wanted,
	image_url, image_public_id, status, created_at, updated_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Category, &p.Condition,
		&p.Wanted, &p.ImageURL, &p.ImagePublicID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OwnerID, p.Title, p.Description, p.Category, p.Condition, p.Wanted,
		p.ImageURL, p.ImagePublicID, p.Status, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	return expectOne(s.pool.Exec(ctx, `
		UPDATE products
		SET title = $2, description = $3, category = $4, condition = $5, wanted = $6,
		    image_url = $7, image_public_id = $8, status = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Title, p.Description, p.Category, p.Condition, p.Wanted,
		p.ImageURL, p.ImagePublicID, p.Status, p.UpdatedAt))
}

func (s *Store) SetProductStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`, id, from, to, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return expectOne(s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id))
}

// whereBuilder собирает условия и их позиционные аргументы
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	var w whereBuilder
	if f.OwnerID != nil {
		w.add("owner_id = $%d", *f.OwnerID)
	}
	if f.ExcludeOwner != nil {
		w.add("owner_id <> $%d", *f.ExcludeOwner)
	}
	if f.Category != "" {
		w.add("category = $%d", f.Category)
	}
	if f.Condition != "" {
		w.add("condition = $%d", f.Condition)
	}
	if len(f.Statuses) > 0 {
		w.add("status = ANY($%d)", f.Statuses)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args := append(w.args, limitOrAll(f.Limit), f.Offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM products%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, productColumns, w.String(), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

// Обмены

const tradeColumns = `id, proposer_id, receiver_id, offered_product_id, requested_product_id, message,
	status, proposer_confirmed, receiver_confirmed, version, created_at, updated_at, completed_at`

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var t models.Trade
	err := row.Scan(&t.ID, &t.ProposerID, &t.ReceiverID, &t.OfferedProductID, &t.RequestedProductID,
		&t.Message, &t.Status, &t.ProposerConfirmed, &t.ReceiverConfirmed, &t.Version,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *Store) CreateTrade(ctx context.Context, t *models.Trade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.ProposerID, t.ReceiverID, t.OfferedProductID, t.RequestedProductID, t.Message,
		t.Status, t.ProposerConfirmed, t.ReceiverConfirmed, t.Version, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	return mapErr(err)
}

func (s *Store) GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	return scanTrade(s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
}

func (s *Store) UpdateTrade(ctx context.Context, t *models.Trade, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE trades
		SET status = $2, proposer_confirmed = $3, receiver_confirmed = $4, version = $5,
		    updated_at = $6, completed_at = $7
		WHERE id = $1 AND version = $8`,
		t.ID, t.Status, t.ProposerConfirmed, t.ReceiverConfirmed, t.Version,
		t.UpdatedAt, t.CompletedAt, expectedVersion)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trades WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (s *Store) ListTrades(ctx context.Context, f store.TradeFilter) ([]models.Trade, error) {
	var w whereBuilder
	if f.UserID != nil {
		switch f.Direction {
		case store.DirectionIncoming:
			w.add("receiver_id = $%d", *f.UserID)
		case store.DirectionOutgoing:
			w.add("proposer_id = $%d", *f.UserID)
		default:
			w.add("(proposer_id = $%[1]d OR receiver_id = $%[1]d)", *f.UserID)
		}
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.ProductID != nil {
		w.add("(offered_product_id = $%[1]d OR requested_product_id = $%[1]d)", *f.ProductID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades`+w.String()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// Оценки

func (s *Store) CreateRating(ctx context.Context, r *models.Rating) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ratings (id, trade_id, rater_id, rated_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.TradeID, r.RaterID, r.RatedID, r.Score, r.Comment, r.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListRatingsFor(ctx context.Context, ratedID uuid.UUID) ([]models.Rating, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trade_id, rater_id, rated_id, score, comment, created_at
		FROM ratings WHERE rated_id = $1
		ORDER BY created_at DESC`, ratedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := []models.Rating{}
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.ID, &r.TradeID, &r.RaterID, &r.RatedID, &r.Score, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// Сообщения

const messageColumns = `id, sender_id, receiver_id, trade_id, text, is_read, created_at`

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()
	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.TradeID, &m.Text, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SenderID, m.ReceiverID, m.TradeID, m.Text, m.IsRead, m.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListConversation(ctx context.Context, a, b uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) latest
		ORDER BY created_at, id`, a, b, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *Store) ListMessagesOf(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *Store) MarkRead(ctx context.Context, receiverID, senderID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE receiver_id = $1 AND sender_id = $2 AND NOT is_read`, receiverID, senderID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Избранное

func (s *Store) AddFavorite(ctx context.Context, f *models.Favorite) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO favorites (id, user_id, product_id, created_at)
		VALUES ($1, $2, $3, $4)`, f.ID, f.UserID, f.ProductID, f.CreatedAt)
	return mapErr(err)
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	return expectOne(s.pool.Exec(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`, userID, productID))
}

func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.Favorite, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, product_id, created_at FROM favorites
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	favs := []models.Favorite{}
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.ProductID, &f.CreatedAt); err != nil {
			return nil, err
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

func (s *Store) IsFavorite(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = $1 AND product_id = $2)`,
		userID, productID).Scan(&exists)
	return exists, err
}

// Статистика

func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{Products: map[string]int{}, Trades: map[string]int{}}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.Users); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, `SELECT status, COUNT(*) FROM products GROUP BY status`, stats.Products); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, `SELECT status, COUNT(*) FROM trades GROUP BY status`, stats.Trades); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) countBy(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
