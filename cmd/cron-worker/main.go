package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/clinicops-backend/internal/cron"
	"github.com/angelmondragon/clinicops-backend/internal/export"
	"github.com/angelmondragon/clinicops-backend/internal/pipeline"
	"github.com/angelmondragon/clinicops-backend/pkg/bigquery"
	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/angelmondragon/clinicops-backend/pkg/db"
	"github.com/angelmondragon/clinicops-backend/pkg/instance"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
	"github.com/angelmondragon/clinicops-backend/pkg/migrate"
	"github.com/angelmondragon/clinicops-backend/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	repairIndex := flag.Bool("repair-index", true, "rewrite identity index defects found by ledger-index-verify")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var (
		redisClient *redis.Client
		lock        cron.Lock = &cron.LocalLock{}
	)
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
		lock, err = cron.NewRedisLock(redisClient, redisClient.CronLockKey(lockName), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	pl, err := pipeline.New(pipeline.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient.DB(),
		Redis:   redisClient,
		Metrics: pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire ledger pipeline", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	closeExport, err := registerJobs(context.Background(), cfg, logg, pl, pipelineMetrics, registry, *repairIndex)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
		"workerId":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if *once {
		err = service.RunOnce(ctx)
	} else {
		err = service.Run(ctx)
	}
	if closeErr := pl.Close(); closeErr != nil {
		logg.Error(ctx, "ledger pipeline did not drain cleanly", closeErr)
	}
	if closeErr := closeExport(); closeErr != nil {
		logg.Error(ctx, "failed to close bigquery client", closeErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func registerJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, pl *pipeline.Pipeline, m *metrics.PipelineMetrics, registry *cron.Registry, repair bool) (func() error, error) {
	if syncer := pl.Syncer(); syncer != nil {
		job, err := cron.NewMirrorResyncJob(cron.MirrorResyncJobParams{
			Logger:  logg,
			Syncer:  syncer,
			Sources: pl.MirrorSources(),
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}

	indexJob, err := cron.NewIndexVerifyJob(cron.IndexVerifyJobParams{
		Logger:  logg,
		Metrics: m,
		Targets: pl.IndexTargets(),
		Repair:  repair,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(indexJob); err != nil {
		return nil, err
	}

	if !cfg.BigQuery.Enabled(cfg.GCP) {
		logg.Warn(ctx, "bigquery not configured, shipment-export disabled")
		return noopClose, nil
	}
	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (func() error, error) {
		_ = bq.Close()
		return nil, err
	}
	exporter, err := export.NewExporter(export.ExporterParams{
		Client: bq,
		Table:  cfg.BigQuery.ShipmentsTable,
		Logger: logg,
	})
	if err != nil {
		return fail(err)
	}
	exportJob, err := cron.NewShipmentExportJob(cron.ShipmentExportJobParams{
		Logger:   logg,
		Exporter: exporter,
		Sources:  pl.ExportSources(),
	})
	if err != nil {
		return fail(err)
	}
	if err := registry.Register(exportJob); err != nil {
		return fail(err)
	}
	return bq.Close, nil
}

func noopClose() error { return nil }

func openDB(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	if cfg.FeatureFlags.UseSQLite {
		return db.NewSQLite(ctx, cfg.DB, logg)
	}
	return db.New(ctx, cfg.DB, logg)
}
