// Package params читает типизированные параметры пути и запроса.
package params

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
)

// UUID разбирает параметр пути name
func UUID(c fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Invalid("Invalid %s", name)
	}
	return id, nil
}

// ParseUUID разбирает поле тела или запроса
func ParseUUID(value, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperr.Invalid("Invalid %s", field)
	}
	return id, nil
}

// Int читает неотрицательный целый параметр запроса, def если его нет
func Int(c fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Invalid("Invalid %s", name)
	}
	return n, nil
}
