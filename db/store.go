package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"rollbook-server-go/config"
	"rollbook-server-go/models"
)

// Store persists the two logical datasets: the directory and the accounts.
// Every call reads or writes the whole dataset.
type Store interface {
	LoadDirectory(ctx context.Context) (models.Directory, error)
	SaveDirectory(ctx context.Context, dir models.Directory) error
	LoadAccounts(ctx context.Context) (models.Accounts, error)
	SaveAccounts(ctx context.Context, accounts models.Accounts) error
	Close() error
}

// Open picks the Store for the configured storage mode
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.StorageMode {
	case config.ModeDocument:
		store, err = NewDocumentStore(cfg.DataFile, cfg.AccountsFile)
	case config.ModeSQLite:
		store, err = NewSQLStore(ctx, DriverSQLite, cfg.DatabaseURL)
	case config.ModePostgres:
		store, err = NewSQLStore(ctx, DriverPostgres, cfg.DatabaseURL)
	case config.ModeRedis:
		var client *redis.Client
		client, err = InitializeRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			store = NewRedisStore(client)
		}
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("storage ready", "mode", cfg.StorageMode)
	return store, nil
}
