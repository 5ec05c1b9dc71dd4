package user

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для /api/users
func (s *UserService) SetupRoutes(router fiber.Router, authMiddleware, optionalAuth fiber.Handler) {
	api := router.Group("/api/users")

	api.Put("/me", authMiddleware, s.UpdateMe)

	api.Get("/:id", s.GetProfile)
	api.Get("/:id/products", optionalAuth, s.GetProducts)
	api.Get("/:id/ratings", s.GetRatings)
}
