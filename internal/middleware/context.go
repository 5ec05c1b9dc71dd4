package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/swaply-api/internal/logger"
)

const localsContext = "requestContext"

// RequestContext дает каждому запросу context.Context с таймаутом и логгером
// запроса. Он наследуется от c.Context(), поэтому отмена со стороны сервера
// (контекст клиентского соединения) отменяет и его. Ставится после
// logger.Middleware.
func RequestContext(timeout time.Duration) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx := logger.WithContext(c.Context(), logger.FromFiber(c))
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		SetContext(c, ctx)
		return c.Next()
	}
}

// Context возвращает контекст запроса, установленный RequestContext
func Context(c fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(localsContext).(context.Context); ok {
		return ctx
	}
	return logger.WithContext(context.Background(), logger.FromFiber(c))
}

// SetContext заменяет контекст запроса
func SetContext(c fiber.Ctx, ctx context.Context) {
	c.Locals(localsContext, ctx)
}
