package logger

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKeyLoggerType struct{}

var contextKeyLogger = &contextKeyLoggerType{}

const (
	requestIDKey = "request_id"
	userIDKey    = "user_id"

	// LocalsKey is the fiber locals key holding the request logger
	LocalsKey = "logger"

	// HeaderRequestID is echoed back on every response
	HeaderRequestID = "X-Request-ID"
)

// InitLogger sets up the text formatter and the log level
func InitLogger(level string) {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("unknown log level %q, falling back to info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// Default returns a logger without request fields
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// Middleware attaches a request-scoped logger with a request ID to every request.
// An incoming X-Request-ID header is reused.
func Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		requestID := c.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(HeaderRequestID, requestID)
		c.Locals(LocalsKey, logrus.WithField(requestIDKey, requestID))
		return c.Next()
	}
}

// FromFiber returns the request logger stored by Middleware
func FromFiber(c fiber.Ctx) *logrus.Entry {
	if entry, ok := c.Locals(LocalsKey).(*logrus.Entry); ok {
		return entry
	}
	return Default()
}

// SetUser adds the authenticated user to the request logger
func SetUser(c fiber.Ctx, userID string) {
	c.Locals(LocalsKey, FromFiber(c).WithField(userIDKey, userID))
}

// WithContext stores the logger in the context
func WithContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKeyLogger, entry)
}

// FromContext returns the logger stored in the context, or the default logger
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return Default()
	}
	if entry, ok := ctx.Value(contextKeyLogger).(*logrus.Entry); ok {
		return entry
	}
	return Default()
}

// RequestID returns the request ID of the logger stored in the context
func RequestID(ctx context.Context) string {
	if id, ok := FromContext(ctx).Data[requestIDKey].(string); ok {
		return id
	}
	return ""
}
