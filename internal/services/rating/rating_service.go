package rating

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/services/params"
	"github.com/rajivgeraev/swaply-api/internal/services/user"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

// RatingService позволяет участникам обмена оценить друг друга
type RatingService struct {
	store     store.Store
	events    events.Publisher
	validator *validation.Validator
	now       func() time.Time
}

// NewRatingService создает новый экземпляр RatingService
func NewRatingService(st store.Store, publisher events.Publisher, validator *validation.Validator) *RatingService {
	return &RatingService{store: st, events: publisher, validator: validator, now: time.Now}
}

// Input это оценка в том виде, в котором ее присылает пользователь
type Input struct {
	TradeID string `json:"trade_id"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type ratingsResponse struct {
	Ratings    []models.Rating   `json:"ratings"`
	Reputation models.Reputation `json:"reputation"`
}

// Rate сохраняет оценку raterID второму участнику завершенного обмена
func (s *RatingService) Rate(ctx context.Context, raterID uuid.UUID, in Input) (*models.Rating, error) {
	tradeID, err := params.ParseUUID(in.TradeID, "trade_id")
	if err != nil {
		return nil, err
	}
	if in.Score < models.MinScore || in.Score > models.MaxScore {
		return nil, apperr.Invalid("Score must be between %d and %d", models.MinScore, models.MaxScore)
	}

	t, err := s.store.GetTrade(ctx, tradeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Trade not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Could not load trade")
	}
	if !t.IsParticipant(raterID) {
		return nil, apperr.Forbidden("You are not a participant of this trade")
	}
	if t.Status != models.TradeCompleted {
		return nil, apperr.Conflict("Only completed trades can be rated")
	}

	r := &models.Rating{
		ID:        uuid.New(),
		TradeID:   t.ID,
		RaterID:   raterID,
		RatedID:   t.Counterpart(raterID),
		Score:     in.Score,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateRating(ctx, r); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("You already rated this trade")
		}
		return nil, apperr.Internal(err, "Could not save rating")
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"trade_id": t.ID,
		"rated_id": r.RatedID,
		"score":    r.Score,
	}).Info("rating created")
	s.events.Publish(ctx, events.New(events.RatingCreated, r.ID, raterID, r))
	return r, nil
}

// CreateRating обрабатывает POST /api/ratings
func (s *RatingService) CreateRating(c fiber.Ctx) error {
	var in Input
	if err := s.validator.Bind(c, validation.Rating, &in); err != nil {
		return err
	}
	r, err := s.Rate(middleware.Context(c), middleware.UserID(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

// GetUserRatings обрабатывает GET /api/ratings/user/:id
func (s *RatingService) GetUserRatings(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	if _, err := s.store.GetUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal(err, "Could not load user")
	}
	ratings, rep, err := user.RatingsOf(ctx, s.store, id)
	if err != nil {
		return err
	}
	return c.JSON(ratingsResponse{Ratings: ratings, Reputation: rep})
}
