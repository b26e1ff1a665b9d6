package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/clinicops-backend/internal/mirror"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"go.uber.org/multierr"
)

type MirrorResyncJobParams struct {
	Logger  *logger.Logger
	Syncer  mirrorResyncer
	Sources []mirror.RowSource
}

type mirrorResyncer interface {
	Resync(ctx context.Context, source mirror.RowSource) (mirror.ResyncReport, error)
}

// NewMirrorResyncJob rebuilds the relational mirror from every ledger instance.
func NewMirrorResyncJob(params MirrorResyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("mirror syncer required")
	}
	if len(params.Sources) == 0 {
		return nil, fmt.Errorf("at least one ledger source required")
	}
	return &mirrorResyncJob{
		logg:    params.Logger,
		syncer:  params.Syncer,
		sources: params.Sources,
	}, nil
}

type mirrorResyncJob struct {
	logg    *logger.Logger
	syncer  mirrorResyncer
	sources []mirror.RowSource
}

func (j *mirrorResyncJob) Name() string { return "mirror-resync" }

func (j *mirrorResyncJob) Run(ctx context.Context) error {
	var errs error
	for _, src := range j.sources {
		report, err := j.syncer.Resync(ctx, src)
		logCtx := j.logg.WithFields(j.logg.WithInstance(ctx, src.Instance()), map[string]any{
			"rows":    report.Rows,
			"synced":  report.Synced,
			"batches": report.Batches,
			"failed":  report.Failed,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mirror resync %s: %w", src.Instance(), err))
			j.logg.Warn(logCtx, "mirror resync incomplete")
			continue
		}
		j.logg.Info(logCtx, "mirror resync complete")
	}
	return errs
}
