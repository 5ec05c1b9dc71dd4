package admin

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
)

// SetupRoutes настраивает маршруты /api/admin, доступные только администраторам
func (s *AdminService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	api := router.Group("/api/admin", authMiddleware, middleware.RequireRole(models.RoleAdmin))

	api.Get("/stats", s.GetStats)
	api.Get("/users", s.GetUsers)
	api.Put("/users/:id/status", s.SetUserStatus)
	api.Delete("/products/:id", s.DeleteProduct)
}
