package admin

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/media"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/services/listing"
	"github.com/rajivgeraev/swaply-api/internal/services/params"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AdminService предоставляет эндпоинты модерации
type AdminService struct {
	store     store.Store
	media     media.Store
	validator *validation.Validator
	now       func() time.Time
}

// NewAdminService создает новый экземпляр AdminService
func NewAdminService(st store.Store, images media.Store, validator *validation.Validator) *AdminService {
	return &AdminService{store: st, media: images, validator: validator, now: time.Now}
}

type usersResponse struct {
	Users  []models.User `json:"users"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type statusRequest struct {
	IsActive *bool `json:"is_active"`
}

// GetStats обрабатывает GET /api/admin/stats
func (s *AdminService) GetStats(c fiber.Ctx) error {
	stats, err := s.store.Stats(middleware.Context(c))
	if err != nil {
		return apperr.Internal(err, "Could not load stats")
	}
	return c.JSON(stats)
}

// GetUsers обрабатывает GET /api/admin/users
func (s *AdminService) GetUsers(c fiber.Ctx) error {
	limit, err := params.Int(c, "limit", defaultPageSize)
	if err != nil {
		return err
	}
	offset, err := params.Int(c, "offset", 0)
	if err != nil {
		return err
	}
	limit = store.Page(limit, defaultPageSize, maxPageSize)

	users, total, err := s.store.ListUsers(middleware.Context(c), limit, offset)
	if err != nil {
		return apperr.Internal(err, "Could not load users")
	}
	return c.JSON(usersResponse{Users: users, Total: total, Limit: limit, Offset: offset})
}

// SetUserStatus обрабатывает PUT /api/admin/users/:id/status
func (s *AdminService) SetUserStatus(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := s.validator.Bind(c, validation.UserStatus, &req); err != nil {
		return err
	}
	if req.IsActive == nil {
		return apperr.Invalid("is_active is required")
	}
	if id == middleware.UserID(c) && !*req.IsActive {
		return apperr.Invalid("You cannot deactivate yourself")
	}

	ctx := middleware.Context(c)
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return apperr.Internal(err, "Could not load user")
	}
	if u.IsActive != *req.IsActive {
		u.IsActive = *req.IsActive
		u.UpdatedAt = s.now().UTC()
		if err := s.store.UpdateUser(ctx, u); err != nil {
			return apperr.Internal(err, "Could not update user")
		}
		logger.FromContext(ctx).WithField("target_user_id", id).WithField("is_active", u.IsActive).Info("user status changed")
	}
	return c.JSON(u)
}

// DeleteProduct обрабатывает DELETE /api/admin/products/:id
func (s *AdminService) DeleteProduct(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Product not found")
	}
	if err != nil {
		return apperr.Internal(err, "Could not load product")
	}
	if err := listing.RemoveProduct(ctx, s.store, s.media, p); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
