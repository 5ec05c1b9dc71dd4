// Package server assembles the HTTP surface: the fiber REST app and the
// websocket hub behind one net/http handler.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/auth"
	"github.com/rajivgeraev/swaply-api/internal/captcha"
	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/media"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/realtime"
	"github.com/rajivgeraev/swaply-api/internal/recommend"
	"github.com/rajivgeraev/swaply-api/internal/search"
	"github.com/rajivgeraev/swaply-api/internal/services/admin"
	authsvc "github.com/rajivgeraev/swaply-api/internal/services/auth"
	"github.com/rajivgeraev/swaply-api/internal/services/chat"
	"github.com/rajivgeraev/swaply-api/internal/services/favorite"
	"github.com/rajivgeraev/swaply-api/internal/services/listing"
	"github.com/rajivgeraev/swaply-api/internal/services/rating"
	"github.com/rajivgeraev/swaply-api/internal/services/trade"
	"github.com/rajivgeraev/swaply-api/internal/services/user"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

const (
	bodyLimit       = 10 * 1024 * 1024
	shutdownTimeout = 10 * time.Second
)

// Deps are the collaborators the server is built from
type Deps struct {
	Config    *config.Config
	Store     store.Store
	Auth      auth.Authenticator
	Media     media.Store
	Events    events.Publisher
	Captcha   *captcha.Verifier
	Searcher  *search.Searcher
	Validator *validation.Validator
	// HTTPLog enables the fiber access log
	HTTPLog bool
}

// Server is the assembled application
type Server struct {
	App     *fiber.App
	Hub     *realtime.Hub
	Handler http.Handler

	deps Deps
}

// New wires every service onto a fresh fiber app
func New(d Deps) *Server {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		AppName:      "Swaply API",
		ErrorHandler: apperr.Handler,
		BodyLimit:    bodyLimit,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	bridge := &contextBridge{}
	app.Use(bridge.handler)
	app.Use(recover.New())
	if d.HTTPLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", logger.HeaderRequestID},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))
	app.Use(logger.Middleware())
	app.Use(middleware.RequestContext(cfg.RequestTimeout))

	authMiddleware := middleware.AuthMiddleware(d.Auth)
	optionalAuth := middleware.OptionalAuth(d.Auth)

	chatService := chat.NewChatService(d.Store, d.Events, d.Validator)
	hub := realtime.NewHub(d.Auth, chatService, d.Validator, cfg.RequestTimeout)
	chatService.SetDeliverer(hub)

	app.Get("/health", func(c fiber.Ctx) error {
		if err := d.Store.Ping(middleware.Context(c)); err != nil {
			return apperr.Unavailable("Storage is unreachable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authsvc.NewAuthService(d.Auth, d.Captcha, d.Validator).SetupRoutes(app, authMiddleware)
	user.NewUserService(d.Store, d.Validator).SetupRoutes(app, authMiddleware, optionalAuth)
	listing.NewListingService(d.Store, d.Media, d.Searcher, recommend.New(d.Store), d.Validator).SetupRoutes(app, authMiddleware)
	trade.NewTradeService(d.Store, d.Events, d.Validator).SetupRoutes(app, authMiddleware)
	rating.NewRatingService(d.Store, d.Events, d.Validator).SetupRoutes(app, authMiddleware)
	chatService.SetupRoutes(app, authMiddleware)
	favorite.NewFavoriteService(d.Store, d.Validator).SetupRoutes(app, authMiddleware)
	admin.NewAdminService(d.Store, d.Media, d.Validator).SetupRoutes(app, authMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/", bridge.wrap(adaptor.FiberApp(app)))

	return &Server{App: app, Hub: hub, Handler: mux, deps: d}
}

// Run serves on addr until ctx is canceled, then drains connections
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Default().WithField("addr", addr).Info("swaply api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Default().Info("shutting down")
	s.Hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Close releases the event publisher and the store
func (s *Server) Close() {
	if err := s.deps.Events.Close(); err != nil {
		logger.Default().WithError(err).Warn("close event publisher")
	}
	s.deps.Store.Close()
}
