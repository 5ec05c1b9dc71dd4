package auth

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для /api/auth
func (s *AuthService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	api := router.Group("/api/auth")

	api.Post("/signup", s.Signup)
	api.Post("/login", s.Login)
	api.Post("/refresh", s.Refresh)

	api.Post("/logout", authMiddleware, s.Logout)
	api.Get("/verify", authMiddleware, s.Verify)
	api.Get("/me", authMiddleware, s.Me)
}
