package apperr

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_WrapAndStatus(t *testing.T) {
	cause := errors.New("roble: 500 admin password expired")
	err := Upstream(cause, "Storage unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, fiber.StatusBadGateway, StatusOf(err))
	assert.Contains(t, err.Error(), "Storage unavailable")

	assert.Equal(t, fiber.StatusNotFound, StatusOf(NotFound("Product %s not found", "x")))
	assert.Equal(t, fiber.StatusTeapot, StatusOf(fiber.NewError(fiber.StatusTeapot, "tea")))
	assert.Equal(t, fiber.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestHandler_HidesCause(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: Handler})
	app.Get("/upstream", func(c fiber.Ctx) error {
		return Upstream(errors.New("secret admin token rejected"), "Storage unavailable")
	})
	app.Get("/invalid", func(c fiber.Ctx) error {
		return Invalid("Validation failed").WithDetails([]string{"title is required"})
	})
	app.Get("/plain", func(c fiber.Ctx) error {
		return errors.New("database exploded")
	})

	cases := []struct {
		path    string
		status  int
		message string
	}{
		{"/upstream", fiber.StatusBadGateway, "Storage unavailable"},
		{"/invalid", fiber.StatusBadRequest, "Validation failed"},
		{"/plain", fiber.StatusInternalServerError, "Internal server error"},
		{"/missing", fiber.StatusNotFound, ""},
	}

	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "secret")
		assert.NotContains(t, string(raw), "exploded")

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		if tc.message != "" {
			assert.Equal(t, tc.message, body["error"])
		}
		if tc.path == "/invalid" {
			assert.Equal(t, []any{"title is required"}, body["details"])
		}
	}
}
