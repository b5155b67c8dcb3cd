package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nbulygin/teamgate/pkg/access"
	"github.com/nbulygin/teamgate/pkg/api"
	"github.com/nbulygin/teamgate/pkg/config"
	"github.com/nbulygin/teamgate/pkg/identity"
	"github.com/nbulygin/teamgate/pkg/initdata"
	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store/cache"
	"github.com/nbulygin/teamgate/pkg/store/postgres"
	"github.com/nbulygin/teamgate/pkg/telegram"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations applied")

	st := postgres.New(db)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var usernameCache *cache.UsernameCache
	if cfg.Redis.URL != "" {
		usernameCache, err = cache.New(cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer usernameCache.Close()
		if metrics != nil {
			usernameCache.WithMetrics(metrics)
		}
		logger.Info("username cache connected")
	} else {
		logger.Warn("no redis URL configured, username resolution is uncached")
	}

	tg, err := telegram.NewClient(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("init telegram client: %w", err)
	}
	if metrics != nil {
		tg.WithMetrics(metrics)
	}

	validator := initdata.NewValidator(cfg.Telegram.BotToken).
		WithMaxAge(cfg.Telegram.InitDataMaxAge)
	gates := access.NewGates(validator, st, "/", "/health")

	var resolverCache identity.Cache
	if usernameCache != nil {
		resolverCache = usernameCache
	}
	resolver := identity.NewResolver(st, tg, resolverCache)

	server := api.NewServer(st, resolver, gates, logger, cfg.Pagination)

	var handler http.Handler = server
	handler = observability.LoggingMiddleware(logger)(handler)
	if metrics != nil {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	handler = observability.RequestIDMiddleware(handler)
	handler = observability.RecoveryMiddleware(logger)(handler)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	var cachePinger observability.Pinger
	if usernameCache != nil {
		cachePinger = usernameCache
	}
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, cachePinger))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	if metrics != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.ObserveDBStats(db.Stats())
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("health server shutdown failed")
		}
		return nil
	})

	return g.Wait()
}
