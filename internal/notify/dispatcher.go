package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/clinicops-backend/pkg/logger"
)

const (
	defaultDispatchTimeout = 3 * time.Second
	defaultDispatchWorkers = 2
	defaultDispatchQueue   = 256
)

type invalidation struct {
	ctx       context.Context
	patientID string
}

// Dispatcher fires invalidations on a fixed worker pool so callers never wait
// on the cache endpoint. When the queue is full the invalidation is dropped
// and logged; the cache entry then expires on its own TTL.
type Dispatcher struct {
	notifier Notifier
	logg     *logger.Logger
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan invalidation
	wg     sync.WaitGroup
}

type DispatcherParams struct {
	Notifier  Notifier
	Logger    *logger.Logger
	Timeout   time.Duration
	Workers   int
	QueueSize int
}

// NewDispatcher validates params and starts the workers.
func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	workers := p.Workers
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	size := p.QueueSize
	if size <= 0 {
		size = defaultDispatchQueue
	}
	d := &Dispatcher{
		notifier: notifier,
		logg:     p.Logger,
		timeout:  timeout,
		queue:    make(chan invalidation, size),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d, nil
}

// Notify queues one invalidation per distinct non-empty patient id. It never
// blocks.
func (d *Dispatcher) Notify(ctx context.Context, patientIDs ...string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	base := context.WithoutCancel(ctx)
	seen := map[string]struct{}{}
	for _, raw := range patientIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		select {
		case d.queue <- invalidation{ctx: base, patientID: id}:
		default:
			d.logg.Warn(d.logg.WithPatientID(ctx, id), "invalidation queue full, dropping")
		}
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for inv := range d.queue {
		d.send(inv.ctx, inv.patientID)
	}
}

func (d *Dispatcher) send(ctx context.Context, patientID string) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	logCtx := d.logg.WithPatientID(ctx, patientID)
	if err := d.notifier.InvalidatePatient(ctx, patientID); err != nil {
		d.logg.Error(logCtx, "cache invalidation failed", err)
		return
	}
	d.logg.Debug(logCtx, "cache invalidation sent")
}

// Close stops accepting notifications and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
