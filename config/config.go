package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage modes
const (
	ModeDocument = "document"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
	ModeRedis    = "redis"
)

// Deployment environments
const (
	EnvLocal  = "local"
	EnvVercel = "vercel"
)

// Session backends
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

const devSecretKey = "rollbook-dev-secret-change-me"

// Config holds everything the server needs at start-up
type Config struct {
	Environment    string
	StorageMode    string
	DataFile       string
	AccountsFile   string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionBackend string
	SessionTTL     time.Duration
	SecretKey      string
	Address        string
	SeedDemoData   bool
	Debug          bool
}

// Load reads .env (if present) and the environment into a Config.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("loading .env: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("checking .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ROLLBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// legacy deployment switch, unprefixed
	_ = v.BindEnv("environment", "ENVIRONMENT")
	for _, key := range []string{
		"storage_mode", "data_file", "accounts_file", "database_url",
		"redis_addr", "redis_password", "redis_db",
		"session_backend", "session_ttl", "secret_key",
		"address", "seed_demo_data", "debug",
	} {
		_ = v.BindEnv(key)
	}

	v.SetDefault("environment", EnvLocal)
	v.SetDefault("data_file", "data/user_data.json")
	v.SetDefault("accounts_file", "data/user_accounts.json")
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("session_backend", SessionMemory)
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("address", ":8080")
	v.SetDefault("seed_demo_data", false)
	return v
}

// FromViper builds and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Environment:    strings.ToLower(v.GetString("environment")),
		StorageMode:    strings.ToLower(v.GetString("storage_mode")),
		DataFile:       v.GetString("data_file"),
		AccountsFile:   v.GetString("accounts_file"),
		DatabaseURL:    v.GetString("database_url"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		SessionBackend: strings.ToLower(v.GetString("session_backend")),
		SessionTTL:     v.GetDuration("session_ttl"),
		SecretKey:      v.GetString("secret_key"),
		Address:        v.GetString("address"),
		SeedDemoData:   v.GetBool("seed_demo_data"),
	}

	local := cfg.Environment == "" || cfg.Environment == EnvLocal
	if v.IsSet("debug") {
		cfg.Debug = v.GetBool("debug")
	} else {
		cfg.Debug = local
	}

	if cfg.StorageMode == "" {
		if local {
			cfg.StorageMode = ModeDocument
		} else {
			cfg.StorageMode = ModeSQLite
		}
	}
	if cfg.DatabaseURL == "" && cfg.StorageMode == ModeSQLite {
		if cfg.Environment == EnvVercel {
			cfg.DatabaseURL = "/tmp/app.db"
		} else {
			cfg.DatabaseURL = "app.db"
		}
	}

	if cfg.SecretKey == "" {
		if !local {
			return Config{}, errors.New("ROLLBOOK_SECRET_KEY required outside the local environment")
		}
		slog.Warn("using development secret key", "environment", cfg.Environment)
		cfg.SecretKey = devSecretKey
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the combination of settings
func (c Config) Validate() error {
	switch c.StorageMode {
	case ModeDocument:
		if c.DataFile == "" || c.AccountsFile == "" {
			return errors.New("document mode needs both a data file and an accounts file")
		}
	case ModeSQLite, ModePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s mode needs ROLLBOOK_DATABASE_URL", c.StorageMode)
		}
	case ModeRedis:
		if c.RedisAddr == "" {
			return errors.New("redis mode needs ROLLBOOK_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown storage mode %q", c.StorageMode)
	}

	switch c.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if c.RedisAddr == "" {
			return errors.New("redis sessions need ROLLBOOK_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}

	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	return nil
}
