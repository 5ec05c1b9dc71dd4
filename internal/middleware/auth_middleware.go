package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/auth"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/reqctx"
)

const (
	localsUserID = "userID"
	localsUser   = "user"
)

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>"
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware создаёт middleware для проверки access-токена и сохраняет
// пользователя для UserID, CurrentUser и контекста запроса
func AuthMiddleware(authn auth.Authenticator) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperr.Unauthorized("Missing authorization header")
		}
		token, ok := BearerToken(authHeader)
		if !ok {
			return apperr.Unauthorized("Invalid authorization header format")
		}
		if err := authenticate(c, authn, token); err != nil {
			return err
		}
		return c.Next()
	}
}

// OptionalAuth определяет пользователя, если передан токен, и пропускает анонимные
// запросы. Невалидный токен все равно отклоняется.
func OptionalAuth(authn auth.Authenticator) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, ok := BearerToken(c.Get("Authorization"))
		if !ok {
			return c.Next()
		}
		if err := authenticate(c, authn, token); err != nil {
			return err
		}
		return c.Next()
	}
}

func authenticate(c fiber.Ctx, authn auth.Authenticator, token string) error {
	ctx := reqctx.WithAccessToken(Context(c), token)
	u, err := authn.Verify(ctx, token)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return apperr.Unauthorized("Invalid or expired token")
	case errors.Is(err, auth.ErrInactive):
		return apperr.Forbidden("Account is deactivated")
	case err != nil:
		return apperr.Upstream(err, "Could not verify token")
	}

	c.Locals(localsUserID, u.ID)
	c.Locals(localsUser, u)
	logger.SetUser(c, u.ID.String())

	ctx = reqctx.WithIdentity(ctx, reqctx.Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	SetContext(c, logger.WithContext(ctx, logger.FromFiber(c)))
	return nil
}

// RequireRole пропускает только пользователей с заданной ролью. Ставится после AuthMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c fiber.Ctx) error {
		u := CurrentUser(c)
		if u == nil {
			return apperr.Unauthorized("Authentication required")
		}
		if u.Role != role {
			return apperr.Forbidden("Insufficient permissions")
		}
		return c.Next()
	}
}

// UserID возвращает id пользователя, uuid.Nil для анонимных запросов
func UserID(c fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals(localsUserID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// CurrentUser возвращает пользователя, nil для анонимных запросов
func CurrentUser(c fiber.Ctx) *models.User {
	u, _ := c.Locals(localsUser).(*models.User)
	return u
}
