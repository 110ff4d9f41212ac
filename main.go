package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/term"

	"rollbook-server-go/auth"
	"rollbook-server-go/config"
	"rollbook-server-go/db"
	"rollbook-server-go/directory"
	"rollbook-server-go/handlers"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errUsage = errors.New("usage: rollbook [serve] | rollbook useradd -username NAME")
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(os.Args[1:]); err != nil {
		slog.Error("rollbook failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd {
	case "serve":
		return serve(ctx, cfg, store)
	case "useradd":
		return userAdd(ctx, store, args, os.Stdout)
	default:
		return errUsage
	}
}

func serve(ctx context.Context, cfg config.Config, store db.Store) error {
	dir := directory.NewService(store)
	if cfg.SeedDemoData {
		checkAndSeedData(ctx, dir)
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSessions(); err != nil {
			slog.Warn("failed to close session store", "error", err)
		}
	}()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handlers.NewHandler(dir, auth.NewAccounts(store), sessions, auth.NewTokens(cfg.SecretKey, cfg.SessionTTL), cfg.SessionTTL)
	h.SecureCookie = cfg.Environment != config.EnvLocal

	router, err := handlers.NewRouter(h, handlers.Options{})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Address, "environment", cfg.Environment, "storage", cfg.StorageMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newSessionStore picks the session backend. Redis sessions share the storage
// client when the directory lives in Redis too; otherwise the returned close
// func releases the dedicated client.
func newSessionStore(ctx context.Context, cfg config.Config, store db.Store) (auth.SessionStore, func() error, error) {
	noop := func() error { return nil }
	if cfg.SessionBackend != config.SessionRedis {
		return auth.NewMemoryStore(cfg.SessionTTL), noop, nil
	}
	if rs, ok := store.(*db.RedisStore); ok {
		return auth.NewRedisStore(rs.Client, cfg.SessionTTL), noop, nil
	}
	client, err := db.InitializeRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisStore(client, cfg.SessionTTL), client.Close, nil
}

// checkAndSeedData adds the demo divisions when the directory is empty
func checkAndSeedData(ctx context.Context, dir *directory.Service) {
	if _, err := dir.SeedIfEmpty(ctx); err != nil {
		slog.Warn("could not seed demo data", "error", err)
	}
}

// userAdd creates an account or resets its password from the terminal
func userAdd(ctx context.Context, store db.Store, args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("useradd", flag.ContinueOnError)
	cmd.SetOutput(out)
	username := cmd.String("username", "", "account to create or update")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		cmd.Usage()
		return errUsage
	}

	fmt.Fprint(out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(pwd) == 0 {
		return errUsage
	}

	if err := auth.NewAccounts(store).SetPassword(ctx, *username, string(pwd)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Password set for %s\n", *username)
	return nil
}
