package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/lorrc/restaurant-relay/internal/adapters/primary/http"
	mw "github.com/lorrc/restaurant-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/restaurant-relay/internal/adapters/secondary/cache"
	"github.com/lorrc/restaurant-relay/internal/adapters/secondary/postgres"
	"github.com/lorrc/restaurant-relay/internal/adapters/secondary/redis"
	"github.com/lorrc/restaurant-relay/internal/auth"
	"github.com/lorrc/restaurant-relay/internal/config"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"github.com/lorrc/restaurant-relay/internal/core/services"
	"github.com/lorrc/restaurant-relay/internal/infrastructure/logging"
	"github.com/lorrc/restaurant-relay/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Database Pool
	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connection established")

	// 4. Owner lookups: postgres, then the optional shared cache, then memory
	repo := postgres.NewOwnerRepository(pool)
	deps := []httpAdapter.Dependency{{Name: "database", Checker: repo}}

	var owners ports.OwnerResolver = repo
	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		shared := redis.NewOwnerCache(redisClient, repo, cfg.Redis.KeyPrefix, cfg.OwnerCache.TTL, logger)
		owners = shared
		deps = append(deps, httpAdapter.Dependency{Name: "redis", Checker: shared, Optional: true})
		logger.Info("redis owner cache enabled")
	}
	if cfg.OwnerCache.Size > 0 {
		owners = cache.NewOwnerCache(owners, cfg.OwnerCache.Size, cfg.OwnerCache.TTL)
	}

	// 5. Security
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL).WithIssuer(cfg.JWT.Issuer)
	verifier := auth.NewVerifier(tokenManager)

	// 6. Metrics
	var relayOpts []services.Option
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		relayMetrics, err := metrics.New(reg)
		if err != nil {
			return err
		}
		relayOpts = append(relayOpts, services.WithMetrics(relayMetrics))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	// 7. Relay core
	relay := services.NewRelay(verifier, owners, services.RelayConfig{
		IdleTimeout:  cfg.Relay.IdleTimeout,
		ReapInterval: cfg.Relay.ReapInterval,
		ActionRate:   cfg.Relay.ActionRate,
		ActionBurst:  cfg.Relay.ActionBurst,
	}, logger, relayOpts...)

	// 8. Rate Limiters
	var ipLimiter *mw.RateLimiter
	var subjectLimiter *mw.RateLimitBySubject
	if cfg.RateLimit.Enabled {
		limits := mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		}
		ipLimiter = mw.NewRateLimiter(limits)
		defer ipLimiter.Stop()
		subjectLimiter = mw.NewRateLimitBySubject(limits)
		defer subjectLimiter.Stop()
	}

	// 9. Primary adapters
	errorHandler := httpAdapter.NewErrorHandler(logger)
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		WebSocket:      httpAdapter.NewWebSocketHandler(relay, cfg, logger),
		Events:         httpAdapter.NewRelayEventsHandler(relay.Handlers(), errorHandler, logger),
		Health:         httpAdapter.NewHealthHandler(relay, cfg.App.Version, deps...),
		Verifier:       verifier,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		RateLimiter:    ipLimiter,
		SubjectLimiter: subjectLimiter,
		MetricsPath:    cfg.Metrics.Path,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 10. Serve until a signal arrives, then drain
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return relay.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by the server, so
		// the relay closes them first.
		err := relay.Shutdown(shutdownCtx)
		err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		if redisClient != nil {
			err = multierr.Append(err, redisClient.Close())
		}
		return err
	})

	return g.Wait()
}

// openPool connects to Postgres with the configured pool limits.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
