package rating

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для /api/ratings
func (s *RatingService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	api := router.Group("/api/ratings")

	api.Get("/user/:id", s.GetUserRatings)
	api.Post("/", authMiddleware, s.CreateRating)
}
