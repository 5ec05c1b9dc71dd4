package trade

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты API обменов
func (s *TradeService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	api := router.Group("/api/trueques", authMiddleware)

	api.Post("/", s.CreateTrade)
	api.Get("/", s.GetMyTrades)
	api.Get("/:id", s.GetTrade)
	api.Put("/:id/status", s.UpdateTradeStatus)
	api.Put("/:id/confirm", s.ConfirmTrade)
}
