package listing

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для /api/products
func (s *ListingService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	api := router.Group("/api/products")

	api.Get("/", s.GetProducts)
	api.Get("/search", s.Search)
	api.Get("/recommendations", authMiddleware, s.Recommendations)
	api.Get("/upload/params", authMiddleware, s.UploadParams)
	api.Get("/:id", s.GetProduct)

	api.Post("/", authMiddleware, s.CreateProduct)
	api.Put("/:id", authMiddleware, s.UpdateProduct)
	api.Delete("/:id", authMiddleware, s.DeleteProduct)
}
