package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/store/memory"
	"github.com/MrEthical07/goAccount/store/postgres"
	"github.com/MrEthical07/goAccount/store/sqlite"
)

// accountStore is what the server needs from a backend: the engine contract
// plus account creation for the seed account.
type accountStore interface {
	goAccount.AccountStore
	CreateAccount(ctx context.Context, credentialHash string, identifiers ...string) (*goAccount.Account, error)
}

func openStore(ctx context.Context, cfg serverConfig) (accountStore, func(), error) {
	switch cfg.Store {
	case "memory", "":
		return memory.New(), func() {}, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := postgres.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openRedis(addr string, sugar *zap.SugaredLogger) (redis.UniversalClient, func(), error) {
	if addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return rdb, func() { _ = rdb.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	sugar.Warnw("no redis address configured; using in-process miniredis", "addr", mr.Addr())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

// logNotifier stands in for a delivery channel. The code itself is never
// logged.
func logNotifier(logger *zap.Logger) goAccount.CodeNotifier {
	return goAccount.CodeNotifierFunc(func(_ context.Context, accountID, purpose, _ string) error {
		logger.Info("one-time code issued",
			zap.String("account_id", accountID),
			zap.String("purpose", purpose),
		)
		return nil
	})
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg := newServerConfig(cmd)

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	engineCfg, ephemeral, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if ephemeral {
		sugar.Warn("no jwt secret configured; sessions will not survive a restart")
	}

	rdb, closeRedis, err := openRedis(cfg.RedisAddr, sugar)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := goAccount.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithCodeNotifier(logNotifier(logger.Named("notifier"))).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if cfg.SeedIdentifier != "" {
		if err := seedAccount(ctx, engine, store, cfg.SeedIdentifier, cfg.SeedSecret); err != nil {
			return err
		}
		sugar.Infow("seed account ready", "identifier", cfg.SeedIdentifier)
	}

	a := newAPI(engine, logger)
	public := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.publicRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	internal := &http.Server{
		Addr:              cfg.InternalAddr,
		Handler:           a.internalRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{public, internal} {
		go func() {
			sugar.Infow("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	select {
	case <-sigCtx.Done():
		sugar.Info("shutting down")
	case err = <-serveErr:
		sugar.Errorw("server failed", "error", err)
	}

	doneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{public, internal} {
		if shutdownErr := srv.Shutdown(doneCtx); shutdownErr != nil {
			sugar.Warnf("http server shutdown failed: %v", shutdownErr)
		}
	}
	return err
}

func seedAccount(ctx context.Context, engine *goAccount.Engine, store accountStore, identifier, secret string) error {
	if secret == "" {
		return errors.New("seed-secret is required with seed-identifier")
	}
	if _, err := store.GetAccountByLookup(ctx, identifier); err == nil {
		return nil
	}
	hash, err := engine.HashCredential(secret)
	if err != nil {
		return fmt.Errorf("hash seed secret: %w", err)
	}
	if _, err := store.CreateAccount(ctx, hash, identifier); err != nil {
		return fmt.Errorf("create seed account: %w", err)
	}
	return nil
}
