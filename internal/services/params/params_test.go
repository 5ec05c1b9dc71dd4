package params

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
)

func TestParams(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler})
	app.Get("/items/:id", func(c fiber.Ctx) error {
		id, err := UUID(c, "id")
		if err != nil {
			return err
		}
		limit, err := Int(c, "limit", 20)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": id, "limit": limit})
	})

	id := uuid.New()
	cases := []struct {
		path   string
		status int
	}{
		{"/items/" + id.String(), fiber.StatusOK},
		{"/items/" + id.String() + "?limit=5", fiber.StatusOK},
		{"/items/not-a-uuid", fiber.StatusBadRequest},
		{"/items/" + id.String() + "?limit=-1", fiber.StatusBadRequest},
		{"/items/" + id.String() + "?limit=abc", fiber.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
	}

	_, err := ParseUUID("nope", "trade_id")
	assert.Equal(t, fiber.StatusBadRequest, apperr.StatusOf(err))
}
