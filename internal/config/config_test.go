package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MemoryDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "pw")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "swaply.events", cfg.KafkaConfig.Topic)
	assert.Equal(t, "postgres://swaply_user:pw@db.internal:5432/swaply?sslmode=disable", cfg.DatabaseURL)
}

func TestLoadConfig_ExplicitDatabaseURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@h:1/d")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h:1/d", cfg.DatabaseURL)
}

func TestLoadConfig_RobleRequiresDBName(t *testing.T) {
	t.Setenv("STORE_BACKEND", "roble")
	t.Setenv("ROBLE_DB_NAME", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROBLE_DB_NAME")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"postgres without secret", Config{StoreBackend: BackendPostgres, DatabaseURL: "postgres://x"}, "JWT_SECRET"},
		{"memory without secret", Config{StoreBackend: BackendMemory}, "JWT_SECRET"},
		{"unknown backend", Config{StoreBackend: "mongo"}, "unknown STORE_BACKEND"},
		{"roble ok", Config{StoreBackend: BackendRoble, RobleConfig: RobleConfig{DBName: "swaply_db"}}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLists(t *testing.T) {
	cfg := Config{
		AdminEmails: " Admin@Swaply.co , ops@swaply.co,,",
		CORSOrigins: "https://swaply.co, http://localhost:5173",
		KafkaConfig: KafkaConfig{Brokers: "k1:9092,k2:9092"},
	}

	assert.Equal(t, map[string]bool{"admin@swaply.co": true, "ops@swaply.co": true}, cfg.Admins())
	assert.Equal(t, []string{"https://swaply.co", "http://localhost:5173"}, cfg.Origins())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaConfig.BrokerList())

	cfg.CORSOrigins = ""
	assert.Equal(t, []string{"*"}, cfg.Origins())
}
