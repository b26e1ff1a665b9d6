package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/clinicops-backend/internal/export"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
)

type ShipmentExportJobParams struct {
	Logger   *logger.Logger
	Exporter shipmentExporter
	Sources  []export.RowSource
}

type shipmentExporter interface {
	Export(ctx context.Context, sources ...export.RowSource) (export.Report, error)
}

func NewShipmentExportJob(params ShipmentExportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Exporter == nil {
		return nil, fmt.Errorf("shipment exporter required")
	}
	if len(params.Sources) == 0 {
		return nil, fmt.Errorf("at least one ledger source required")
	}
	return &shipmentExportJob{
		logg:     params.Logger,
		exporter: params.Exporter,
		sources:  params.Sources,
	}, nil
}

type shipmentExportJob struct {
	logg     *logger.Logger
	exporter shipmentExporter
	sources  []export.RowSource
}

func (j *shipmentExportJob) Name() string { return "shipment-export" }

func (j *shipmentExportJob) Run(ctx context.Context) error {
	report, err := j.exporter.Export(ctx, j.sources...)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  report.Scanned,
		"ready":    report.Ready,
		"refunded": report.Refunded,
		"exported": report.Exported,
	})
	if err != nil {
		j.logg.Warn(logCtx, "shipment export incomplete")
		return fmt.Errorf("shipment export: %w", err)
	}
	j.logg.Info(logCtx, "shipment export complete")
	return nil
}
