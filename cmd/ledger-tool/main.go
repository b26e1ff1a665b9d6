package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/clinicops-backend/internal/index"
	"github.com/angelmondragon/clinicops-backend/internal/lock"
	"github.com/angelmondragon/clinicops-backend/internal/pipeline"
	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/angelmondragon/clinicops-backend/pkg/db"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
	"github.com/angelmondragon/clinicops-backend/pkg/redis"
)

type options struct {
	cmd      string
	file     string
	instance string
	dryRun   bool
}

func main() {
	os.Exit(run())
}

// run returns the exit code after every deferred close, including the mirror
// flush in pl.Close, has run.
func run() int {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "", "command: transcribe|repair-index|resync-mirror")
	flag.StringVar(&opts.file, "file", "", "csv file with a header row (for transcribe)")
	flag.StringVar(&opts.instance, "instance", "", "ledger instance (default: first configured)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "report index defects without rewriting them (for repair-index)")
	flag.Parse()

	switch opts.cmd {
	case "transcribe", "repair-index", "resync-mirror":
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", opts.cmd)
		flag.Usage()
		return 2
	}
	if opts.cmd == "transcribe" && opts.file == "" {
		fmt.Fprintln(os.Stderr, "missing -file for transcribe")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: "ledger-tool", Output: os.Stderr})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if failed(ctx, logg, "config", err) {
		return 1
	}

	logg = logger.New(logger.Options{
		ServiceName: "ledger-tool",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	var dbClient *db.Client
	if cfg.FeatureFlags.UseSQLite {
		dbClient, err = db.NewSQLite(ctx, cfg.DB, logg)
	} else {
		dbClient, err = db.New(ctx, cfg.DB, logg)
	}
	if failed(ctx, logg, "database", err) {
		return 1
	}
	defer dbClient.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if failed(ctx, logg, "redis", err) {
			return 1
		}
		defer redisClient.Close()
	}

	notifier, closeNotifier, err := pipeline.NewNotifier(ctx, cfg, logg)
	if failed(ctx, logg, "cache notifier", err) {
		return 1
	}
	defer closeNotifier()

	pl, err := pipeline.New(pipeline.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient.DB(),
		Redis:    redisClient,
		Metrics:  metrics.NewPipelineMetrics(nil),
		Notifier: notifier,
	})
	if failed(ctx, logg, "ledger pipeline", err) {
		return 1
	}
	pl.Start(ctx)

	code := execute(ctx, logg, pl, opts, os.Stdout)
	if err := pl.Close(); err != nil {
		logg.Error(ctx, "ledger pipeline did not drain cleanly", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

// execute runs one command against an assembled pipeline, prints its JSON
// report to out and returns the exit code. The caller closes the pipeline.
func execute(ctx context.Context, logg *logger.Logger, pl *pipeline.Pipeline, opts options, out io.Writer) int {
	inst, ok := pl.Instance(opts.instance)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown ledger instance %q (configured: %v)\n", opts.instance, pl.Registry().Names())
		return 2
	}
	ctx = logg.WithInstance(ctx, inst.Name)

	var (
		result any
		err    error
	)
	switch opts.cmd {
	case "transcribe":
		result, err = transcribe(ctx, logg, inst, opts.file)
	case "repair-index":
		result, err = repairIndex(ctx, inst, opts.dryRun)
	case "resync-mirror":
		syncer := pl.Syncer()
		if syncer == nil {
			fmt.Fprintln(os.Stderr, "mirror is disabled; set CLINICOPS_MIRROR_ENABLED=true")
			return 2
		}
		result, err = syncer.Resync(ctx, inst.Store)
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", opts.cmd)
		return 2
	}

	printJSON(out, result)
	if err != nil {
		logg.Error(ctx, fmt.Sprintf("%s failed", opts.cmd), err)
		return 1
	}
	return 0
}

func transcribe(ctx context.Context, logg *logger.Logger, inst pipeline.Instance, path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, unknown, err := readRows(f)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		logg.Warn(logg.WithField(ctx, "columns", unknown), "ignoring unrecognized csv columns")
	}

	report, err := inst.Router.Transcribe(ctx, rows)
	return map[string]any{
		"total":    report.Total,
		"appended": report.Appended,
		"merged":   report.Merged,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
	}, err
}

func repairIndex(ctx context.Context, inst pipeline.Instance, dryRun bool) (any, error) {
	var report index.Report
	err := lock.WithLock(ctx, inst.Guard, func(ctx context.Context) error {
		positions, err := inst.Store.KeyPositions(ctx)
		if err != nil {
			return err
		}
		report, err = index.Verify(ctx, inst.Index, positions)
		if err != nil || dryRun || report.Clean() {
			return err
		}
		return index.Repair(ctx, inst.Index, positions, report, time.Now())
	})
	return map[string]any{
		"dry_run":  dryRun,
		"checked":  report.Checked,
		"missing":  report.Missing,
		"stale":    report.Stale,
		"orphaned": report.Orphaned,
	}, err
}

func printJSON(out io.Writer, v any) {
	if v == nil {
		return
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func failed(ctx context.Context, logg *logger.Logger, resource string, err error) bool {
	if err == nil {
		return false
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	return true
}
