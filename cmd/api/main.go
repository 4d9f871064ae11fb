package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hiberry/internal/api"
	"hiberry/internal/auth"
	"hiberry/internal/buildinfo"
	"hiberry/internal/config"
	"hiberry/internal/events"
	"hiberry/internal/geo"
	"hiberry/internal/integrations/shopify"
	"hiberry/internal/logging"
	"hiberry/internal/metrics"
	"hiberry/internal/orders"
	"hiberry/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "hiberry-orders")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Locker and broker selection
	var (
		locker store.DateLocker = store.NewMemoryLocker()
		broker events.Broker    = events.NewMemory()
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		locker = store.NewRedisLocker(rdb)
		broker = events.NewRedis(rdb, logger)
		logger.Info("using redis for date locks and events")
	}

	var g geo.Geocoder
	switch cfg.GeocoderProvider() {
	case "nominatim":
		n := geo.NewNominatim(cfg.Geocoder.URL, cfg.Geocoder.UserAgent, logger)
		n.CountryCodes = cfg.Geocoder.CountryCodes
		g = n
	default:
		g = geo.NewStatic()
	}

	svc := orders.NewService(st, locker, g, broker, cfg.Rules(), logger)
	if cfg.Planner.Parallelism > 0 {
		svc.Parallelism = cfg.Planner.Parallelism
	}
	metrics.RegisterDefault()

	handler := api.NewServer(svc, auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret), broker, st, logger)
	if cfg.Shopify.WebhookSecret != "" {
		handler.AddIntegration(shopify.New(cfg.Shopify.WebhookSecret))
		logger.Info("shopify order webhook enabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("API listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("version", buildinfo.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore picks the in-memory store when no database URL is configured.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.OrderStore, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, orders are kept in memory")
		return store.NewMemory(), func() {}, nil
	}
	s, err := store.NewSQL(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("using sql order store", zap.String("driver", cfg.Database.Driver))
	return s, func() { _ = s.Close() }, nil
}
