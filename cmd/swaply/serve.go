package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rajivgeraev/swaply-api/internal/auth"
	"github.com/rajivgeraev/swaply-api/internal/captcha"
	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/media"
	"github.com/rajivgeraev/swaply-api/internal/roble"
	"github.com/rajivgeraev/swaply-api/internal/search"
	"github.com/rajivgeraev/swaply-api/internal/server"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/store/memstore"
	"github.com/rajivgeraev/swaply-api/internal/store/pgstore"
	"github.com/rajivgeraev/swaply-api/internal/store/roblestore"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST and websocket API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations first (postgres backend)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger.InitLogger(level)
	return cfg, nil
}

// openBackend создает хранилище и подходящий аутентификатор
func openBackend(ctx context.Context, cfg *config.Config) (store.Store, auth.Authenticator, error) {
	admins := cfg.Admins()
	tokens := func() *auth.TokenService {
		return auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	}

	switch cfg.StoreBackend {
	case config.BackendRoble:
		client := roble.NewClient(cfg.RobleConfig)
		service := roble.NewTokenSource(client, cfg.RobleConfig.ServiceEmail, cfg.RobleConfig.ServicePassword)
		if !service.Configured() {
			logger.Default().Warn("ROBLE service account not configured, background calls will fail")
		}
		st := roblestore.New(client, service)
		return st, auth.NewRoble(client, st, admins), nil

	case config.BackendPostgres:
		if autoMigrate {
			applied, err := pgstore.Migrate(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Default().WithField("applied", applied).Info("migrations applied")
		}
		pool, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		st := pgstore.New(pool)
		return st, auth.NewLocal(st, tokens(), admins), nil

	case config.BackendMemory:
		logger.Default().Warn("using the in-memory store, data is lost on restart")
		st := memstore.New()
		return st, auth.NewLocal(st, tokens(), admins), nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, authn, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	images, err := media.New(cfg.CloudinaryConfig)
	if err != nil {
		st.Close()
		return fmt.Errorf("cloudinary: %w", err)
	}
	synonyms, err := search.LoadSynonyms(cfg.SynonymsFile)
	if err != nil {
		st.Close()
		return err
	}
	validator, err := validation.New()
	if err != nil {
		st.Close()
		return err
	}

	log := logger.Default().WithField("backend", cfg.StoreBackend)
	log.WithField("images", images.Enabled()).
		WithField("nlp", cfg.NLPConfig.URL != "").
		WithField("kafka", len(cfg.KafkaConfig.BrokerList()) > 0).
		Info("starting swaply api")

	srv := server.New(server.Deps{
		Config:    cfg,
		Store:     st,
		Auth:      authn,
		Media:     images,
		Events:    events.NewPublisher(cfg.KafkaConfig),
		Captcha:   captcha.New(cfg.RecaptchaConfig),
		Searcher:  search.NewSearcher(search.NewNLPClient(cfg.NLPConfig), search.NewEngine(synonyms)),
		Validator: validator,
		HTTPLog:   cfg.IsDevelopment(),
	})
	defer srv.Close()

	return srv.Run(ctx, ":"+cfg.Port)
}
