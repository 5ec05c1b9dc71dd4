package favorite

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для /api/favorites
func (s *FavoriteService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	api := router.Group("/api/favorites", authMiddleware)

	api.Get("/", s.GetFavorites)
	api.Post("/", s.AddFavorite)
	api.Delete("/:productId", s.RemoveFavorite)
	api.Get("/:productId/check", s.CheckFavorite)
}
