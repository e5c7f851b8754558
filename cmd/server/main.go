package main // Entry point for the booking API

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/auth"
	"github.com/iliyamo/showbook/internal/booking"
	"github.com/iliyamo/showbook/internal/cache"
	"github.com/iliyamo/showbook/internal/config"
	"github.com/iliyamo/showbook/internal/database"
	"github.com/iliyamo/showbook/internal/handler"
	"github.com/iliyamo/showbook/internal/inventory"
	"github.com/iliyamo/showbook/internal/logger"
	"github.com/iliyamo/showbook/internal/middleware"
	"github.com/iliyamo/showbook/internal/queue"
	"github.com/iliyamo/showbook/internal/repository"
	"github.com/iliyamo/showbook/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogPath, "showbook.log", cfg.LogDebug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	store, db, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Redis backs the shared caches and the rate limiter; without it the
	// process falls back to an in-memory cache and no rate limiting.
	rdb := config.NewRedisClient(cfg.Redis)
	var c cache.Cache
	if rdb != nil {
		defer rdb.Close()
		c = cache.NewRedis(rdb, cfg.Cache.Prefix)
	} else {
		zl.Warn("redis unavailable, using in-process cache")
		mem := cache.NewMemory()
		go mem.Run(ctx, cache.DefaultSweepEvery)
		c = mem
	}

	var sink queue.Sink = queue.NopSink{}
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, zl)
		defer pub.Close()
		async := queue.NewAsync(pub, 256, zl)
		defer async.Close()
		sink = async
	}

	authn := auth.NewAuthenticator(cfg.JWTSecret, cfg.AccessTTL())
	ledger := inventory.New(store, c, cfg.InventoryCacheTTL, zl)
	manager := booking.NewManager(store, ledger, sink, zl, booking.WithMaxTickets(cfg.MaxTicketsPerBooking))

	deps := router.Deps{
		Log:      zl,
		Authn:    authn,
		Users:    store.Users,
		Auth:     handler.NewAuthHandler(store.Users, authn, cfg.BcryptCost, zl),
		Catalog:  handler.NewCatalogHandler(store, ledger, zl),
		Bookings: handler.NewBookingHandler(manager, store.Bookings, zl),
		Reports:  handler.NewReportHandler(store.Bookings, zl),
	}
	if db != nil {
		deps.DB = db
	}
	if rdb != nil {
		deps.RateLimit = middleware.RateLimit(cfg.RateLimit, rdb, zl)
	}
	if cfg.Cache.Enabled {
		deps.ResponseCache = middleware.ResponseCache(cfg.Cache, c, zl)
	}
	e := router.New(deps)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	zl.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, zl *zap.Logger) (*repository.Store, *sql.DB, error) {
	if cfg.StoreDriver == "memory" {
		zl.Warn("using in-memory store, data is lost on exit")
		return repository.NewMemoryStore().Store(), nil, nil
	}
	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return repository.NewMySQLStore(db), db, nil
}

