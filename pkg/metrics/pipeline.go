package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records reconciliation pipeline activity.
type PipelineMetrics struct {
	events      *prometheus.CounterVec
	lockWait    *prometheus.HistogramVec
	mirrorSyncs *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	indexFixes  *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound payment webhook events by kind and outcome.",
	}, []string{"kind", "outcome"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_lock_wait_seconds",
		Help:    "Time spent waiting for the ledger instance lock.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"instance"})
	mirrorSyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_sync_total",
		Help: "Mirror upserts by outcome.",
	}, []string{"outcome"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_batch_skipped_rows_total",
		Help: "Rows dropped by batch transcription, by reason.",
	}, []string{"reason"})
	indexFixes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_index_repairs_total",
		Help: "Identity index entries rewritten, by defect kind.",
	}, []string{"kind"})
	reg.MustRegister(events, lockWait, mirrorSyncs, skipped, indexFixes)
	return &PipelineMetrics{
		events:      events,
		lockWait:    lockWait,
		mirrorSyncs: mirrorSyncs,
		skipped:     skipped,
		indexFixes:  indexFixes,
	}
}

// IncEvent counts one webhook event.
func (p *PipelineMetrics) IncEvent(kind, outcome string) {
	if p == nil || p.events == nil {
		return
	}
	p.events.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// ObserveLockWait records how long an event waited for the instance lock.
func (p *PipelineMetrics) ObserveLockWait(instance string, wait time.Duration) {
	if p == nil || p.lockWait == nil {
		return
	}
	p.lockWait.WithLabelValues(normalizeLabel(instance)).Observe(wait.Seconds())
}

// IncMirrorSync counts one mirror upsert attempt.
func (p *PipelineMetrics) IncMirrorSync(outcome string) {
	if p == nil || p.mirrorSyncs == nil {
		return
	}
	p.mirrorSyncs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddSkipped adds n dropped rows under reason.
func (p *PipelineMetrics) AddSkipped(reason string, n int) {
	if p == nil || p.skipped == nil || n <= 0 {
		return
	}
	p.skipped.WithLabelValues(normalizeLabel(reason)).Add(float64(n))
}

// AddIndexRepairs adds n repaired index entries of the given kind.
func (p *PipelineMetrics) AddIndexRepairs(kind string, n int) {
	if p == nil || p.indexFixes == nil || n <= 0 {
		return
	}
	p.indexFixes.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}
