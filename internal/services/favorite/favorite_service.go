package favorite

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/services/listing"
	"github.com/rajivgeraev/swaply-api/internal/services/params"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// FavoriteService управляет избранными товарами пользователя
type FavoriteService struct {
	store     store.Store
	validator *validation.Validator
	now       func() time.Time
}

// NewFavoriteService создает новый экземпляр FavoriteService
func NewFavoriteService(st store.Store, validator *validation.Validator) *FavoriteService {
	return &FavoriteService{store: st, validator: validator, now: time.Now}
}

type addRequest struct {
	ProductID string `json:"product_id"`
}

// GetFavorites обрабатывает GET /api/favorites
func (s *FavoriteService) GetFavorites(c fiber.Ctx) error {
	limit, err := params.Int(c, "limit", defaultPageSize)
	if err != nil {
		return err
	}
	offset, err := params.Int(c, "offset", 0)
	if err != nil {
		return err
	}
	limit = store.Page(limit, defaultPageSize, maxPageSize)

	ctx := middleware.Context(c)
	favs, err := s.store.ListFavorites(ctx, middleware.UserID(c))
	if err != nil {
		return apperr.Internal(err, "Could not load favorites")
	}
	page := store.Paginate(favs, limit, offset)
	s.attachProducts(ctx, page)

	return c.JSON(models.FavoriteResponse{
		Favorites: page,
		Total:     len(favs),
		Limit:     limit,
		Offset:    offset,
	})
}

// attachProducts подгружает товар каждого избранного, удаленные пропускаются
func (s *FavoriteService) attachProducts(ctx context.Context, favs []models.Favorite) {
	products := make([]models.Product, 0, len(favs))
	index := make([]int, 0, len(favs))
	for i := range favs {
		p, err := s.store.GetProduct(ctx, favs[i].ProductID)
		if err != nil {
			continue
		}
		products = append(products, *p)
		index = append(index, i)
	}
	listing.AttachOwners(ctx, s.store, products)
	for n, i := range index {
		favs[i].Product = &products[n]
	}
}

// AddFavorite обрабатывает POST /api/favorites
func (s *FavoriteService) AddFavorite(c fiber.Ctx) error {
	var req addRequest
	if err := s.validator.Bind(c, validation.Favorite, &req); err != nil {
		return err
	}
	productID, err := params.ParseUUID(req.ProductID, "product_id")
	if err != nil {
		return err
	}

	ctx := middleware.Context(c)
	userID := middleware.UserID(c)
	p, err := s.store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Product not found")
	}
	if err != nil {
		return apperr.Internal(err, "Could not load product")
	}
	if p.OwnerID == userID {
		return apperr.Invalid("You cannot favorite your own product")
	}

	fav := &models.Favorite{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddFavorite(ctx, fav); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apperr.Conflict("Product is already in favorites")
		}
		return apperr.Internal(err, "Could not add favorite")
	}
	logger.FromContext(ctx).WithField("product_id", productID).Debug("favorite added")

	fav.Product = p
	return c.Status(fiber.StatusCreated).JSON(fav)
}

// RemoveFavorite обрабатывает DELETE /api/favorites/:productId
func (s *FavoriteService) RemoveFavorite(c fiber.Ctx) error {
	productID, err := params.UUID(c, "productId")
	if err != nil {
		return err
	}
	err = s.store.RemoveFavorite(middleware.Context(c), middleware.UserID(c), productID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Product is not in favorites")
	}
	if err != nil {
		return apperr.Internal(err, "Could not remove favorite")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CheckFavorite обрабатывает GET /api/favorites/:productId/check
func (s *FavoriteService) CheckFavorite(c fiber.Ctx) error {
	productID, err := params.UUID(c, "productId")
	if err != nil {
		return err
	}
	ok, err := s.store.IsFavorite(middleware.Context(c), middleware.UserID(c), productID)
	if err != nil {
		return apperr.Internal(err, "Could not check favorite")
	}
	return c.JSON(fiber.Map{"product_id": productID, "is_favorite": ok})
}
