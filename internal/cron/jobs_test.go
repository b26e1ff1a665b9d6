package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/export"
	"github.com/angelmondragon/clinicops-backend/internal/index"
	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/mirror"
)

type fakeLedger struct {
	name      string
	positions map[string]int
	err       error
}

func (f fakeLedger) Instance() string { return f.name }

func (f fakeLedger) KeyPositions(context.Context) (map[string]int, error) {
	return f.positions, f.err
}

func (f fakeLedger) Rows(context.Context) ([]ledger.Row, error) {
	rows := []ledger.Row{}
	for key, pos := range f.positions {
		rows = append(rows, ledger.Row{Position: pos, Fields: ledger.Fields{ledger.FieldPaymentID: key}})
	}
	return rows, f.err
}

type fakeResyncer struct {
	calls []string
	fail  map[string]error
}

func (f *fakeResyncer) Resync(_ context.Context, src mirror.RowSource) (mirror.ResyncReport, error) {
	f.calls = append(f.calls, src.Instance())
	if err := f.fail[src.Instance()]; err != nil {
		return mirror.ResyncReport{Failed: 1}, err
	}
	return mirror.ResyncReport{Rows: 2, Synced: 2, Batches: 1}, nil
}

func TestMirrorResyncJobCoversEveryInstance(t *testing.T) {
	resyncer := &fakeResyncer{fail: map[string]error{"clinic-a": errors.New("db down")}}
	job, err := NewMirrorResyncJob(MirrorResyncJobParams{
		Logger:  testLogger(),
		Syncer:  resyncer,
		Sources: []mirror.RowSource{fakeLedger{name: "clinic-a"}, fakeLedger{name: "clinic-b"}},
	})
	if err != nil {
		t.Fatalf("NewMirrorResyncJob: %v", err)
	}
	if job.Name() != "mirror-resync" {
		t.Fatalf("unexpected name %q", job.Name())
	}

	err = job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "clinic-a") {
		t.Fatalf("expected clinic-a failure, got %v", err)
	}
	if len(resyncer.calls) != 2 {
		t.Fatalf("expected both instances resynced, got %v", resyncer.calls)
	}
}

func TestIndexVerifyJobRepairsDrift(t *testing.T) {
	ctx := context.Background()
	idx := index.NewMemoryIndex()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_ = idx.Upsert(ctx, "pay_1", 1, at)
	_ = idx.Upsert(ctx, "pay_2", 9, at)
	_ = idx.Upsert(ctx, "gone", 4, at)

	ledgerKeys := fakeLedger{name: "clinic-a", positions: map[string]int{"pay_1": 1, "pay_2": 2, "pay_3": 3}}
	job, err := NewIndexVerifyJob(IndexVerifyJobParams{
		Logger:  testLogger(),
		Targets: []IndexTarget{{Ledger: ledgerKeys, Index: idx}},
		Repair:  true,
	})
	if err != nil {
		t.Fatalf("NewIndexVerifyJob: %v", err)
	}
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	report, err := index.Verify(ctx, idx, ledgerKeys.positions)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("expected clean index after repair, got %+v", report)
	}
}

func TestIndexVerifyJobReportOnly(t *testing.T) {
	ctx := context.Background()
	idx := index.NewMemoryIndex()
	ledgerKeys := fakeLedger{name: "clinic-a", positions: map[string]int{"pay_1": 1}}

	job, err := NewIndexVerifyJob(IndexVerifyJobParams{
		Logger:  testLogger(),
		Targets: []IndexTarget{{Ledger: ledgerKeys, Index: idx}},
	})
	if err != nil {
		t.Fatalf("NewIndexVerifyJob: %v", err)
	}
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, found, _ := idx.Lookup(ctx, "pay_1"); found {
		t.Fatal("report-only run must not write the index")
	}

	broken := fakeLedger{name: "clinic-b", err: errors.New("sheet offline")}
	job, _ = NewIndexVerifyJob(IndexVerifyJobParams{
		Logger:  testLogger(),
		Targets: []IndexTarget{{Ledger: broken, Index: idx}},
	})
	if err := job.Run(ctx); err == nil {
		t.Fatal("expected ledger read failure")
	}

	if _, err := NewIndexVerifyJob(IndexVerifyJobParams{Logger: testLogger(), Targets: []IndexTarget{{}}}); err == nil {
		t.Fatal("expected incomplete target to be rejected")
	}
}

type fakeExporter struct {
	sources int
	err     error
}

func (f *fakeExporter) Export(_ context.Context, sources ...export.RowSource) (export.Report, error) {
	f.sources = len(sources)
	return export.Report{Scanned: 3, Ready: 1, Exported: 1}, f.err
}

func TestShipmentExportJob(t *testing.T) {
	exp := &fakeExporter{}
	job, err := NewShipmentExportJob(ShipmentExportJobParams{
		Logger:   testLogger(),
		Exporter: exp,
		Sources:  []export.RowSource{fakeLedger{name: "clinic-a"}, fakeLedger{name: "clinic-b"}},
	})
	if err != nil {
		t.Fatalf("NewShipmentExportJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exp.sources != 2 {
		t.Fatalf("expected 2 sources, got %d", exp.sources)
	}

	exp.err = errors.New("bigquery down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected export failure to surface")
	}

	if _, err := NewShipmentExportJob(ShipmentExportJobParams{Logger: testLogger(), Exporter: exp}); err == nil {
		t.Fatal("expected missing sources to be rejected")
	}
}
