// Package apperr defines the errors handlers return and how they are rendered.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/swaply-api/internal/logger"
)

// Error is an error with an HTTP status and a client-safe message.
// Err is logged but never sent to the client.
type Error struct {
	Status  int
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches client-visible details
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func newError(status int, err error, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...), Err: err}
}

func Invalid(format string, args ...any) *Error {
	return newError(fiber.StatusBadRequest, nil, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(fiber.StatusUnauthorized, nil, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(fiber.StatusForbidden, nil, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(fiber.StatusNotFound, nil, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(fiber.StatusConflict, nil, format, args...)
}

func Unavailable(format string, args ...any) *Error {
	return newError(fiber.StatusServiceUnavailable, nil, format, args...)
}

// Upstream wraps a failure of an external collaborator (ROBLE, NLP, reCAPTCHA, Cloudinary)
func Upstream(err error, format string, args ...any) *Error {
	return newError(fiber.StatusBadGateway, err, format, args...)
}

// Internal wraps an unexpected failure
func Internal(err error, format string, args ...any) *Error {
	return newError(fiber.StatusInternalServerError, err, format, args...)
}

// StatusOf returns the HTTP status an error would be rendered with
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}

// Handler is the fiber error handler. Causes are logged with the request ID,
// only the message and details reach the client.
func Handler(c fiber.Ctx, err error) error {
	body := fiber.Map{}
	status := fiber.StatusInternalServerError

	var appErr *Error
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &appErr):
		status = appErr.Status
		body["error"] = appErr.Message
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
		body["error"] = fiberErr.Message
	default:
		body["error"] = "Internal server error"
	}

	log := logger.FromFiber(c).WithField("status", status)
	if status >= fiber.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	} else {
		log.WithError(err).Debug("request rejected")
	}

	return c.Status(status).JSON(body)
}
