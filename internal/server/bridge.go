package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v3"
)

const bridgeHeader = "X-Swaply-Request-Slot"

// contextBridge carries the net/http request context across the fiber
// adaptor, which hands fiber a pooled fasthttp context without it. A request
// whose client goes away is then canceled down to the store calls.
type contextBridge struct {
	seq      atomic.Uint64
	contexts sync.Map
}

func (b *contextBridge) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot := strconv.FormatUint(b.seq.Add(1), 36)
		b.contexts.Store(slot, r.Context())
		defer b.contexts.Delete(slot)

		r.Header.Set(bridgeHeader, slot)
		next.ServeHTTP(w, r)
	})
}

// handler must be the first fiber middleware. Pooled adaptor contexts keep
// the user values of their previous request, so it clears them before
// installing the request context.
func (b *contextBridge) handler(c fiber.Ctx) error {
	c.RequestCtx().ResetUserValues()

	ctx := context.Background()
	if slot := c.Get(bridgeHeader); slot != "" {
		if v, ok := b.contexts.Load(slot); ok {
			ctx = v.(context.Context)
		}
		c.Request().Header.Del(bridgeHeader)
	}
	c.SetContext(ctx)
	return c.Next()
}
