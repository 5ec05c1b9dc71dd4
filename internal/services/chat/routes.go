package chat

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для /api/messages
func (s *ChatService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	api := router.Group("/api/messages", authMiddleware)

	api.Post("/", s.SendMessage)
	api.Get("/conversations", s.GetConversations)
	api.Get("/with/:userId", s.GetHistory)
}
