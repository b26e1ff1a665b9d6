package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/clinicops-backend/internal/cron"
	"github.com/angelmondragon/clinicops-backend/internal/export"
	"github.com/angelmondragon/clinicops-backend/internal/index"
	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/lock"
	"github.com/angelmondragon/clinicops-backend/internal/mirror"
	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/internal/notify"
	"github.com/angelmondragon/clinicops-backend/internal/reconcile"
	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
	"github.com/angelmondragon/clinicops-backend/pkg/redis"
)

// Params are the process-level dependencies shared by every ledger instance.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Metrics *metrics.PipelineMetrics
	// Notifier receives cache invalidations; nil disables them.
	Notifier notify.Notifier
}

// Instance is everything wired for one ledger.
type Instance struct {
	Name   string
	Store  *ledger.Store
	Index  index.Index
	Guard  lock.Guard
	Router *reconcile.Router
}

// Pipeline owns the per-instance ledger stack plus the shared mirror syncer
// and invalidation dispatcher.
type Pipeline struct {
	logg       *logger.Logger
	instances  []Instance
	registry   *reconcile.Registry
	syncer     *mirror.Syncer
	dispatcher *notify.Dispatcher
}

func New(p Params) (*Pipeline, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg := p.Config

	dispatcher, err := notify.NewDispatcher(notify.DispatcherParams{
		Notifier:  p.Notifier,
		Logger:    p.Logger,
		Timeout:   cfg.Cache.Timeout,
		Workers:   cfg.Cache.Workers,
		QueueSize: cfg.Cache.QueueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("invalidation dispatcher: %w", err)
	}

	pl := &Pipeline{logg: p.Logger, dispatcher: dispatcher}

	if cfg.Mirror.Enabled {
		if p.DB == nil {
			return nil, errors.New("database is required for the mirror")
		}
		pl.syncer, err = mirror.NewSyncer(mirror.SyncerParams{
			Repo:      mirror.NewRepository(p.DB),
			Logger:    p.Logger,
			Metrics:   p.Metrics,
			Workers:   cfg.Mirror.Workers,
			QueueSize: cfg.Mirror.QueueSize,
			Timeout:   cfg.Mirror.Timeout,
			BatchSize: cfg.Mirror.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("mirror syncer: %w", err)
		}
	}

	times := normalize.NewTimeParser(cfg.Ledger.CivilUTCOffset)
	routers := make([]*reconcile.Router, 0, len(cfg.Ledger.InstanceNames()))
	for _, name := range cfg.Ledger.InstanceNames() {
		inst, err := pl.buildInstance(p, name, times)
		if err != nil {
			return nil, fmt.Errorf("ledger instance %s: %w", name, err)
		}
		pl.instances = append(pl.instances, inst)
		routers = append(routers, inst.Router)
	}

	pl.registry, err = reconcile.NewRegistry(cfg.Ledger.DefaultInstance(), routers...)
	if err != nil {
		return nil, err
	}
	return pl, nil
}

func (pl *Pipeline) buildInstance(p Params, name string, times normalize.TimeParser) (Instance, error) {
	sheet, err := newSheet(p, name)
	if err != nil {
		return Instance{}, err
	}
	idx, err := newIndex(p, name)
	if err != nil {
		return Instance{}, err
	}
	guard, err := newGuard(p, name)
	if err != nil {
		return Instance{}, err
	}

	store, err := ledger.NewStore(ledger.StoreParams{
		Instance: name,
		Sheet:    sheet,
		Index:    idx,
		Logger:   p.Logger,
	})
	if err != nil {
		return Instance{}, err
	}

	params := reconcile.RouterParams{
		Store:    store,
		Guard:    guard,
		Notifier: pl.dispatcher,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
		Times:    times,
	}
	if pl.syncer != nil {
		params.Mirror = pl.syncer
	}
	router, err := reconcile.NewRouter(params)
	if err != nil {
		return Instance{}, err
	}
	return Instance{Name: name, Store: store, Index: idx, Guard: guard, Router: router}, nil
}

func newSheet(p Params, name string) (ledger.Sheet, error) {
	switch p.Config.Ledger.SheetBackend {
	case config.SheetBackendMemory:
		return ledger.NewMemorySheet(), nil
	case config.SheetBackendSQL, "":
		if p.DB == nil {
			return nil, errors.New("database is required for the sql sheet backend")
		}
		return ledger.NewSQLSheet(p.DB, name)
	default:
		return nil, fmt.Errorf("unsupported sheet backend %q", p.Config.Ledger.SheetBackend)
	}
}

// newIndex prefers the shared Redis hash so every process sees the same
// key positions; without Redis each process keeps its own.
func newIndex(p Params, name string) (index.Index, error) {
	if p.Redis == nil {
		return index.NewMemoryIndex(), nil
	}
	return index.NewRedisIndex(p.Redis, p.Redis.LedgerIndexKey(name))
}

func newGuard(p Params, name string) (lock.Guard, error) {
	if p.Redis == nil {
		return lock.NewLocalGuard(p.Config.Ledger.LockWait), nil
	}
	return lock.NewRedisGuard(lock.RedisGuardParams{
		Client:   p.Redis,
		Key:      p.Redis.LedgerLockKey(name),
		LeaseTTL: p.Config.Ledger.LockTTL,
		Wait:     p.Config.Ledger.LockWait,
	})
}

// Start launches the background mirror workers.
func (pl *Pipeline) Start(ctx context.Context) {
	if pl.syncer != nil {
		pl.syncer.Start(ctx)
	}
}

// Close drains queued mirror syncs and pending invalidations.
func (pl *Pipeline) Close() error {
	var errs error
	if pl.syncer != nil {
		errs = multierr.Append(errs, pl.syncer.Close())
	}
	pl.dispatcher.Close()
	return errs
}

func (pl *Pipeline) Registry() *reconcile.Registry {
	return pl.registry
}

// Syncer is nil when the mirror is disabled.
func (pl *Pipeline) Syncer() *mirror.Syncer {
	return pl.syncer
}

func (pl *Pipeline) Instances() []Instance {
	return append([]Instance(nil), pl.instances...)
}

// Instance returns the named instance; an empty name selects the default.
func (pl *Pipeline) Instance(name string) (Instance, bool) {
	router, ok := pl.registry.Get(name)
	if !ok {
		return Instance{}, false
	}
	for _, inst := range pl.instances {
		if inst.Name == router.Instance() {
			return inst, true
		}
	}
	return Instance{}, false
}

func (pl *Pipeline) MirrorSources() []mirror.RowSource {
	out := make([]mirror.RowSource, 0, len(pl.instances))
	for _, inst := range pl.instances {
		out = append(out, inst.Store)
	}
	return out
}

func (pl *Pipeline) ExportSources() []export.RowSource {
	out := make([]export.RowSource, 0, len(pl.instances))
	for _, inst := range pl.instances {
		out = append(out, inst.Store)
	}
	return out
}

func (pl *Pipeline) IndexTargets() []cron.IndexTarget {
	out := make([]cron.IndexTarget, 0, len(pl.instances))
	for _, inst := range pl.instances {
		out = append(out, cron.IndexTarget{Ledger: inst.Store, Index: inst.Index})
	}
	return out
}
