package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/index"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// IndexTarget pairs a ledger instance with its identity index.
type IndexTarget struct {
	Ledger keyPositioner
	Index  index.Index
}

type keyPositioner interface {
	Instance() string
	KeyPositions(ctx context.Context) (map[string]int, error)
}

type IndexVerifyJobParams struct {
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
	Targets []IndexTarget
	// Repair rewrites defective entries instead of only reporting them.
	Repair bool
}

func NewIndexVerifyJob(params IndexVerifyJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(params.Targets) == 0 {
		return nil, fmt.Errorf("at least one index target required")
	}
	for i, t := range params.Targets {
		if t.Ledger == nil || t.Index == nil {
			return nil, fmt.Errorf("index target %d incomplete", i)
		}
	}
	return &indexVerifyJob{
		logg:    params.Logger,
		metrics: params.Metrics,
		targets: params.Targets,
		repair:  params.Repair,
		now:     time.Now,
	}, nil
}

type indexVerifyJob struct {
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics
	targets []IndexTarget
	repair  bool
	now     func() time.Time
}

func (j *indexVerifyJob) Name() string { return "ledger-index-verify" }

func (j *indexVerifyJob) Run(ctx context.Context) error {
	var errs error
	for _, t := range j.targets {
		if err := j.verify(ctx, t); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("index verify %s: %w", t.Ledger.Instance(), err))
		}
	}
	return errs
}

func (j *indexVerifyJob) verify(ctx context.Context, t IndexTarget) error {
	ctx = j.logg.WithInstance(ctx, t.Ledger.Instance())

	positions, err := t.Ledger.KeyPositions(ctx)
	if err != nil {
		return fmt.Errorf("read ledger keys: %w", err)
	}
	report, err := index.Verify(ctx, t.Index, positions)
	if err != nil {
		return err
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  report.Checked,
		"missing":  len(report.Missing),
		"stale":    len(report.Stale),
		"orphaned": len(report.Orphaned),
	})
	if report.Clean() {
		j.logg.Info(logCtx, "identity index clean")
		return nil
	}
	if !j.repair {
		j.logg.Warn(logCtx, "identity index drift detected")
		return nil
	}
	if err := index.Repair(ctx, t.Index, positions, report, j.now()); err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	j.metrics.AddIndexRepairs("missing", len(report.Missing))
	j.metrics.AddIndexRepairs("stale", len(report.Stale))
	j.metrics.AddIndexRepairs("orphaned", len(report.Orphaned))
	j.logg.Info(logCtx, "identity index repaired")
	return nil
}
