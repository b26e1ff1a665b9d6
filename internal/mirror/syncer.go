package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/pkg/db/models"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
	defaultTimeout   = 5 * time.Second
	defaultBatchSize = 200
)

// ErrQueueFull is reported when a background sync could not be enqueued.
var ErrQueueFull = errors.New("mirror: sync queue full")

// Result is the outcome of one sync attempt. It is informational; mirror
// failures never roll back the ledger.
type Result struct {
	Instance string
	Keys     []string
	Synced   int
	Err      error
	Duration time.Duration
}

// OK reports whether the sync succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// RowSource is the read side of a ledger store.
type RowSource interface {
	Instance() string
	Rows(ctx context.Context) ([]ledger.Row, error)
}

// SyncerParams configure a Syncer.
type SyncerParams struct {
	Repo      Repository
	Logger    *logger.Logger
	Metrics   *metrics.PipelineMetrics
	Workers   int
	QueueSize int
	Timeout   time.Duration
	BatchSize int
	Clock     func() time.Time
}

type job struct {
	ctx      context.Context
	instance string
	rows     []ledger.Row
}

// Syncer upserts ledger rows into the relational mirror, inline or on a
// bounded background worker pool.
type Syncer struct {
	repo      Repository
	logg      *logger.Logger
	metrics   *metrics.PipelineMetrics
	workers   int
	timeout   time.Duration
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	queue   chan job
	closed  bool
	started bool
	group   *errgroup.Group
}

// NewSyncer validates params and builds a Syncer.
func NewSyncer(p SyncerParams) (*Syncer, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("mirror repository required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Workers <= 0 {
		p.Workers = defaultWorkers
	}
	if p.QueueSize <= 0 {
		p.QueueSize = defaultQueueSize
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	return &Syncer{
		repo:      p.Repo,
		logg:      p.Logger,
		metrics:   p.Metrics,
		workers:   p.Workers,
		timeout:   p.Timeout,
		batchSize: p.BatchSize,
		now:       p.Clock,
		queue:     make(chan job, p.QueueSize),
	}, nil
}

// Sync upserts rows synchronously under the configured timeout.
func (s *Syncer) Sync(ctx context.Context, instance string, rows ...ledger.Row) Result {
	start := time.Now()
	res := Result{Instance: instance}
	orders := make([]models.PaymentOrder, 0, len(rows))
	syncedAt := s.now()
	for _, row := range rows {
		if row.Key() == "" {
			continue
		}
		orders = append(orders, Project(instance, row, syncedAt))
		res.Keys = append(res.Keys, row.Key())
	}
	if len(orders) == 0 {
		return res
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Upsert(writeCtx, orders...); err != nil {
		res.Err = fmt.Errorf("mirror upsert: %w", err)
		s.metrics.IncMirrorSync("failed")
	} else {
		res.Synced = len(orders)
		s.metrics.IncMirrorSync("ok")
	}
	res.Duration = time.Since(start)
	return res
}

// Start launches the background workers. They stop after Close drains the queue.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.group = &errgroup.Group{}
	for i := 0; i < s.workers; i++ {
		s.group.Go(func() error {
			for j := range s.queue {
				s.report(j.ctx, s.Sync(j.ctx, j.instance, j.rows...))
			}
			return nil
		})
	}
	s.logg.Info(s.logg.WithField(ctx, "workers", s.workers), "mirror sync workers started")
}

// Enqueue schedules a background sync. It never blocks; when the queue is
// full or closed the sync is dropped, logged and ErrQueueFull returned. The
// next mirror resync repairs dropped rows.
func (s *Syncer) Enqueue(ctx context.Context, instance string, rows ...ledger.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrQueueFull
	}
	j := job{ctx: context.WithoutCancel(ctx), instance: instance, rows: rows}
	select {
	case s.queue <- j:
		return nil
	default:
		s.metrics.IncMirrorSync("dropped")
		s.logg.Warn(s.logg.WithInstance(ctx, instance), "mirror sync queue full, dropping sync")
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued syncs to finish.
func (s *Syncer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	group := s.group
	s.mu.Unlock()
	if group == nil {
		// never started: flush whatever was queued inline
		for j := range s.queue {
			s.report(j.ctx, s.Sync(j.ctx, j.instance, j.rows...))
		}
		return nil
	}
	return group.Wait()
}

// ResyncReport summarizes a full mirror rebuild.
type ResyncReport struct {
	Rows    int
	Synced  int
	Batches int
	Failed  int
}

// Resync rebuilds the mirror of one ledger instance in batches. Every batch is
// attempted; failures are returned combined.
func (s *Syncer) Resync(ctx context.Context, source RowSource) (ResyncReport, error) {
	rows, err := source.Rows(ctx)
	if err != nil {
		return ResyncReport{}, fmt.Errorf("read ledger rows: %w", err)
	}
	report := ResyncReport{Rows: len(rows)}
	var errs error
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		res := s.Sync(ctx, source.Instance(), rows[start:end]...)
		report.Batches++
		report.Synced += res.Synced
		if !res.OK() {
			report.Failed += end - start
			errs = multierr.Append(errs, fmt.Errorf("batch %d: %w", report.Batches, res.Err))
		}
	}
	return report, errs
}

func (s *Syncer) report(ctx context.Context, res Result) {
	if res.OK() {
		return
	}
	ctx = s.logg.WithFields(s.logg.WithInstance(ctx, res.Instance), map[string]any{
		"payment_ids": res.Keys,
		"duration_ms": res.Duration.Milliseconds(),
	})
	s.logg.Error(ctx, "mirror sync failed", res.Err)
}
