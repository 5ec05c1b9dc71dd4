package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Store backends
const (
	BackendRoble    = "roble"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds the whole service configuration
type Config struct {
	AppEnv         string        `env:"APP_ENV,default=production"`
	Port           string        `env:"PORT,default=8080"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	CORSOrigins    string        `env:"CORS_ORIGINS,default=*"`
	AdminEmails    string        `env:"ADMIN_EMAILS"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	StoreBackend   string        `env:"STORE_BACKEND,default=roble"`
	SynonymsFile   string        `env:"SYNONYMS_FILE"`

	Auth             AuthConfig
	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseConfig   DatabaseConfig
	RobleConfig      RobleConfig
	CloudinaryConfig CloudinaryConfig
	NLPConfig        NLPConfig
	RecaptchaConfig  RecaptchaConfig
	KafkaConfig      KafkaConfig
}

// AuthConfig configures locally issued tokens (postgres and memory backends)
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL,default=1h"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL,default=168h"`
}

// DatabaseConfig holds the discrete PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `env:"PGHOST,default=localhost"`
	Port     string `env:"PGPORT,default=5432"`
	User     string `env:"PGUSER,default=swaply_user"`
	Password string `env:"PGPASSWORD,default=swaply_pass"`
	Name     string `env:"PGDATABASE,default=swaply"`
	SSLMode  string `env:"PGSSLMODE,default=disable"`
}

// RobleConfig configures the hosted ROBLE data and auth API
type RobleConfig struct {
	BaseURL         string        `env:"ROBLE_BASE_URL,default=https://roble-api.openlab.uninorte.edu.co"`
	DBName          string        `env:"ROBLE_DB_NAME"`
	ServiceEmail    string        `env:"ROBLE_SERVICE_EMAIL"`
	ServicePassword string        `env:"ROBLE_SERVICE_PASSWORD"`
	Timeout         time.Duration `env:"ROBLE_TIMEOUT,default=10s"`
}

// CloudinaryConfig holds the Cloudinary credentials
type CloudinaryConfig struct {
	CloudName    string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey       string `env:"CLOUDINARY_API_KEY"`
	APISecret    string `env:"CLOUDINARY_API_SECRET"`
	UploadFolder string `env:"CLOUDINARY_UPLOAD_FOLDER,default=swaply"`
}

// NLPConfig points to the semantic search microservice
type NLPConfig struct {
	URL     string        `env:"NLP_SERVICE_URL"`
	Timeout time.Duration `env:"NLP_TIMEOUT,default=3s"`
}

// RecaptchaConfig configures Google reCAPTCHA verification
type RecaptchaConfig struct {
	Secret    string `env:"RECAPTCHA_SECRET"`
	VerifyURL string `env:"RECAPTCHA_VERIFY_URL,default=https://www.google.com/recaptcha/api/siteverify"`
}

// KafkaConfig configures the domain event publisher
type KafkaConfig struct {
	Brokers string `env:"KAFKA_BROKERS"`
	Topic   string `env:"KAFKA_TOPIC,default=swaply.events"`
}

// LoadConfig loads .env (if present) and decodes the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn(".env file not found, using environment variables")
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.DatabaseURL == "" {
		db := cfg.DatabaseConfig
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			db.User, db.Password, db.Host, db.Port, db.Name, db.SSLMode)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendRoble:
		if c.RobleConfig.DBName == "" {
			return errors.New("ROBLE_DB_NAME is required for the roble backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
		if c.Auth.JWTSecret == "" {
			return errors.New("JWT_SECRET is required for the postgres backend")
		}
	case BackendMemory:
		if c.Auth.JWTSecret == "" {
			return errors.New("JWT_SECRET is required for the memory backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development environment
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Admins returns the lowercased set of admin emails
func (c *Config) Admins() map[string]bool {
	admins := make(map[string]bool)
	for _, email := range splitList(c.AdminEmails) {
		admins[strings.ToLower(email)] = true
	}
	return admins
}

// Origins returns the allowed CORS origins
func (c *Config) Origins() []string {
	origins := splitList(c.CORSOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// BrokerList returns the Kafka broker addresses
func (k KafkaConfig) BrokerList() []string {
	return splitList(k.Brokers)
}

// Enabled reports whether Cloudinary credentials are present
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
