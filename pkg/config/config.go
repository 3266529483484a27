package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const DefaultEnvFile = "./configs/.env"

type Config struct {
	DataDir       string        `env:"HYDROSYNC_DATA_DIR"`
	Debug         bool          `env:"HYDROSYNC_DEBUG,default=false"`
	Profile       string        `env:"HYDROSYNC_PROFILE"`
	MigrationsDir string        `env:"HYDROSYNC_MIGRATIONS_DIR,default=./migrations"`
	RecentLogin   time.Duration `env:"HYDROSYNC_RECENT_LOGIN_WINDOW,default=5m"`

	Postgres PostgresConfig
	// HMAC key for session tokens
	JWTSecret string `env:"JWT_SECRET"`
}

type PostgresConfig struct {
	Address  string `env:"POSTGRES_DB_ADDRESS,default=localhost:5432"`
	Username string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	DB       string `env:"POSTGRES_DB,default=hydrosync"`
}

// Load reads envFile into the environment when it exists and decodes the environment.
// Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}
	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}
	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	return cfg, nil
}

// RemoteEnabled reports whether enough is configured to talk to the remote store.
func (c *Config) RemoteEnabled() bool {
	return c.Postgres.Username != "" && c.JWTSecret != ""
}

func (c *Config) LocalDBPath() string {
	name := "hydrosync.db"
	if c.Profile != "" {
		name = "hydrosync-" + c.Profile + ".db"
	}
	return filepath.Join(c.DataDir, name)
}

func defaultDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(dir, "hydrosync"), nil
}
