package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveDuration("mirror-resync", 250*time.Millisecond)
	m.IncSuccess("mirror-resync")
	m.IncSuccess("mirror-resync")
	m.IncFailure("shipment-export")
	m.IncSkippedCycle()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := counterValue(mfs, "cron_job_runs_total", map[string]string{"job": "mirror-resync", "result": "success"}); got != 2 {
		t.Fatalf("expected 2 successful mirror-resync runs, got %f", got)
	}
	if got := counterValue(mfs, "cron_job_runs_total", map[string]string{"job": "shipment-export", "result": "failure"}); got != 1 {
		t.Fatalf("expected 1 failed shipment-export run, got %f", got)
	}
	if got := counterValue(mfs, "cron_cycles_skipped_total", nil); got != 1 {
		t.Fatalf("expected 1 skipped cycle, got %f", got)
	}

	mf := familyNamed(mfs, "cron_job_duration_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("expected one duration series")
	}
	if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", sum)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("x")
	m.IncSkippedCycle()
	NewCronJobMetrics(nil).ObserveDuration("", time.Second)
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	mf := familyNamed(mfs, name)
	if mf == nil {
		return -1
	}
	for _, metric := range mf.GetMetric() {
		if hasLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}

func familyNamed(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := familyNamed(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if hasLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := familyNamed(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if hasLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}
