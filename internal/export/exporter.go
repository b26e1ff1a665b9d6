package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"go.uber.org/multierr"
)

const defaultBatchSize = 500

// RowSource is the read side of one ledger instance.
type RowSource interface {
	Instance() string
	Rows(ctx context.Context) ([]ledger.Row, error)
}

// Report summarizes one export pass.
type Report struct {
	Scanned  int
	Ready    int
	Refunded int
	Exported int
	Batches  int
}

type ExporterParams struct {
	Client tableInserter
	Table  string
	Logger *logger.Logger
	Retry  RetryPolicy
	Batch  int
	Clock  func() time.Time
}

// Exporter streams rows that are ready to ship into BigQuery.
type Exporter struct {
	client tableInserter
	table  string
	logg   *logger.Logger
	retry  RetryPolicy
	batch  int
	now    func() time.Time
}

func NewExporter(p ExporterParams) (*Exporter, error) {
	if p.Client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(p.Table)
	if table == "" {
		return nil, errors.New("shipment table is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	batch := p.Batch
	if batch <= 0 {
		batch = defaultBatchSize
	}
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	return &Exporter{
		client: p.Client,
		table:  table,
		logg:   p.Logger,
		retry:  p.Retry.withDefaults(),
		batch:  batch,
		now:    now,
	}, nil
}

// Export scans every source and inserts its ready rows. A failing instance
// does not stop the others; errors are returned combined.
func (e *Exporter) Export(ctx context.Context, sources ...RowSource) (Report, error) {
	var (
		report Report
		errs   error
	)
	exportedAt := e.now().UTC()
	for _, src := range sources {
		if src == nil {
			continue
		}
		if err := e.exportInstance(ctx, src, exportedAt, &report); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("instance %s: %w", src.Instance(), err))
		}
	}
	return report, errs
}

func (e *Exporter) exportInstance(ctx context.Context, src RowSource, exportedAt time.Time, report *Report) error {
	ctx = e.logg.WithInstance(ctx, src.Instance())

	rows, err := src.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	pending := make([]any, 0, e.batch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := insertWithRetry(ctx, e.client, e.retry, e.table, pending); err != nil {
			return err
		}
		report.Exported += len(pending)
		report.Batches++
		pending = pending[:0]
		return nil
	}

	ready := 0
	for _, row := range rows {
		report.Scanned++
		if !Ready(row.Fields) {
			if row.Fields.Get(ledger.FieldRefundStatus) != "" {
				report.Refunded++
			}
			continue
		}
		ready++
		pending = append(pending, BuildShipmentRow(src.Instance(), row, exportedAt))
		if len(pending) >= e.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	report.Ready += ready

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"scanned": len(rows),
		"ready":   ready,
	}), "shipment export finished")
	return nil
}
