package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/clinicops-backend/api/controllers"
	"github.com/angelmondragon/clinicops-backend/api/routes"
	"github.com/angelmondragon/clinicops-backend/internal/pipeline"
	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/angelmondragon/clinicops-backend/pkg/db"
	"github.com/angelmondragon/clinicops-backend/pkg/env"
	"github.com/angelmondragon/clinicops-backend/pkg/instance"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
	"github.com/angelmondragon/clinicops-backend/pkg/migrate"
	"github.com/angelmondragon/clinicops-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := openDB(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	probes := map[string]controllers.Pinger{"db": dbClient, "redis": nil}
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		probes["redis"] = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured, ledger locks and index are process-local")
	}

	notifier, closeNotifier, err := pipeline.NewNotifier(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cache notifier", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logg.Error(context.Background(), "error closing cache notifier", err)
		}
	}()

	pl, err := pipeline.New(pipeline.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient.DB(),
		Redis:    redisClient,
		Metrics:  metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
		Notifier: notifier,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire ledger pipeline", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pl.Start(ctx)

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"instances": pl.Registry().Names(),
		"workerId":  instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Routers:  pl.Registry(),
			Gatherer: prometheus.DefaultGatherer,
			Probes:   probes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}

	if err := pl.Close(); err != nil {
		logg.Error(ctx, "ledger pipeline did not drain cleanly", err)
	}
	logg.Info(ctx, "api server stopped")
}

func openDB(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	if cfg.FeatureFlags.UseSQLite {
		return db.NewSQLite(ctx, cfg.DB, logg)
	}
	return db.New(ctx, cfg.DB, logg)
}
