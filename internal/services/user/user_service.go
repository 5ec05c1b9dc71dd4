package user

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/services/params"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

// UserService отдает публичные профили и изменяет профиль
type UserService struct {
	store     store.Store
	validator *validation.Validator
}

// NewUserService создает новый экземпляр UserService
func NewUserService(st store.Store, validator *validation.Validator) *UserService {
	return &UserService{store: st, validator: validator}
}

type profileResponse struct {
	User       *models.PublicUser `json:"user"`
	MemberFrom time.Time          `json:"member_since"`
	Reputation models.Reputation  `json:"reputation"`
}

type ratingsResponse struct {
	Ratings    []models.Rating   `json:"ratings"`
	Reputation models.Reputation `json:"reputation"`
}

type profileUpdate struct {
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatar_url"`
	Location  *string `json:"location"`
}

// activeUser получает пользователя, видимого другим участникам
func (s *UserService) activeUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !u.IsActive) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Could not load user")
	}
	return u, nil
}

// RatingsOf возвращает полученные пользователем оценки с профилями оценивших
func RatingsOf(ctx context.Context, st store.Store, userID uuid.UUID) ([]models.Rating, models.Reputation, error) {
	ratings, err := st.ListRatingsFor(ctx, userID)
	if err != nil {
		return nil, models.Reputation{}, apperr.Internal(err, "Could not load ratings")
	}
	raters := map[uuid.UUID]*models.PublicUser{}
	for i := range ratings {
		id := ratings[i].RaterID
		if _, ok := raters[id]; !ok {
			raters[id] = nil
			if u, err := st.GetUser(ctx, id); err == nil {
				raters[id] = u.Public()
			}
		}
		ratings[i].Rater = raters[id]
	}
	return ratings, models.ComputeReputation(ratings), nil
}

// GetProfile возвращает публичный профиль и репутацию пользователя
func (s *UserService) GetProfile(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	u, err := s.activeUser(ctx, id)
	if err != nil {
		return err
	}
	_, rep, err := RatingsOf(ctx, s.store, id)
	if err != nil {
		return err
	}
	return c.JSON(profileResponse{User: u.Public(), MemberFrom: u.CreatedAt, Reputation: rep})
}

// UpdateMe изменяет профиль текущего пользователя
func (s *UserService) UpdateMe(c fiber.Ctx) error {
	var req profileUpdate
	if err := s.validator.Bind(c, validation.ProfileUpdate, &req); err != nil {
		return err
	}
	ctx := middleware.Context(c)
	u, err := s.store.GetUser(ctx, middleware.UserID(c))
	if err != nil {
		return apperr.Internal(err, "Could not load user")
	}

	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Bio != nil {
		u.Bio = *req.Bio
	}
	if req.AvatarURL != nil {
		u.AvatarURL = *req.AvatarURL
	}
	if req.Location != nil {
		u.Location = *req.Location
	}
	u.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return apperr.Internal(err, "Could not update profile")
	}
	return c.JSON(u)
}

// GetProducts возвращает товары пользователя; зарезервированные и обмененные видит только владелец
func (s *UserService) GetProducts(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	u, err := s.activeUser(ctx, id)
	if err != nil {
		return err
	}

	filter := store.ProductFilter{OwnerID: &id}
	if middleware.UserID(c) != id {
		filter.Statuses = []string{models.ProductAvailable}
	}
	products, total, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return apperr.Internal(err, "Could not load products")
	}
	owner := u.Public()
	for i := range products {
		products[i].Owner = owner
	}
	return c.JSON(fiber.Map{"products": products, "total": total})
}

// GetRatings возвращает полученные пользователем оценки
func (s *UserService) GetRatings(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	if _, err := s.activeUser(ctx, id); err != nil {
		return err
	}
	ratings, rep, err := RatingsOf(ctx, s.store, id)
	if err != nil {
		return err
	}
	return c.JSON(ratingsResponse{Ratings: ratings, Reputation: rep})
}
