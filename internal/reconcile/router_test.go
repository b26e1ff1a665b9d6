package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/index"
	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/lock"
	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clinicops-backend/pkg/errors"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "reconcile-test", Output: io.Discard})
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeMirror struct {
	mu   sync.Mutex
	rows []ledger.Row
	err  error
}

func (m *fakeMirror) Enqueue(_ context.Context, _ string, rows ...ledger.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *fakeMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fakeNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *fakeNotifier) Notify(_ context.Context, patientIDs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, patientIDs...)
}

func (n *fakeNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

type harness struct {
	router   *Router
	store    *ledger.Store
	sheet    *ledger.MemorySheet
	guard    *lock.LocalGuard
	mirror   *fakeMirror
	notifier *fakeNotifier
	registry *prometheus.Registry
}

func newHarness(t *testing.T, instance string) *harness {
	t.Helper()
	clock := &tickingClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	sheet := ledger.NewMemorySheet()
	store, err := ledger.NewStore(ledger.StoreParams{
		Instance: instance,
		Sheet:    sheet,
		Index:    index.NewMemoryIndex(),
		Logger:   testLogger(),
		Clock:    clock.Now,
	})
	require.NoError(t, err)

	h := &harness{
		store:    store,
		sheet:    sheet,
		guard:    lock.NewLocalGuard(50 * time.Millisecond),
		mirror:   &fakeMirror{},
		notifier: &fakeNotifier{},
		registry: prometheus.NewRegistry(),
	}
	h.router, err = NewRouter(RouterParams{
		Store:    store,
		Guard:    h.guard,
		Mirror:   h.mirror,
		Notifier: h.notifier,
		Logger:   testLogger(),
		Metrics:  metrics.NewPipelineMetrics(h.registry),
		Times:    normalize.NewTimeParser(normalize.DefaultCivilOffset),
	})
	require.NoError(t, err)
	return h
}

func (h *harness) row(t *testing.T, key string) ledger.Fields {
	t.Helper()
	ctx := context.Background()
	pos, found, err := h.store.FindRowByKey(ctx, key)
	require.NoError(t, err)
	require.True(t, found, "row %s not found", key)
	row, err := h.store.Row(ctx, pos)
	require.NoError(t, err)
	return row.Fields
}

func (h *harness) rowCount(t *testing.T) int {
	t.Helper()
	rows, err := h.store.Rows(context.Background())
	require.NoError(t, err)
	return len(rows)
}

func (h *harness) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := h.registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

const completedBody = `{
	"kind": "payment_completed",
	"payment_id": "pay_001",
	"order_id": "ord_77",
	"patient_id": "P-100",
	"product_code": " GLP-1  3M ",
	"order_datetime_iso": "2024/03/01 10:30:00",
	"amount": "¥12,800",
	"ship_name": "Yamada  Taro",
	"postal": "1500001",
	"address": "Tokyo Shibuya 1-2-3",
	"email": "Taro@Example.com ",
	"phone": "+81 90-1234-5678",
	"items": [{"sku": "GLP-1", "qty": 3}],
	"tracking_number": "1234-5678-9012"
}`

func TestPaymentCompletedWritesCanonicalRow(t *testing.T) {
	h := newHarness(t, "clinic-a")

	out := h.router.Handle(context.Background(), []byte(completedBody))
	require.Equal(t, StatusApplied, out.Status, out.Err)
	assert.Equal(t, "P-100", out.PatientID)

	row := h.row(t, "pay_001")
	assert.Equal(t, "COMPLETED", row.Get(ledger.FieldPaymentStatus))
	assert.Equal(t, "ord_77", row.Get(ledger.FieldOrderID))
	assert.Equal(t, "GLP-1 3M", row.Get(ledger.FieldProductCode))
	assert.Equal(t, "2024-03-01T01:30:00Z", row.Get(ledger.FieldOrderDatetime))
	assert.Equal(t, "12800", row.Get(ledger.FieldAmount))
	assert.Equal(t, "Yamada Taro", row.Get(ledger.FieldShipName))
	assert.Equal(t, "150-0001", row.Get(ledger.FieldPostalCode))
	assert.Equal(t, "taro@example.com", row.Get(ledger.FieldEmail))
	assert.Equal(t, "09012345678", row.Get(ledger.FieldPhone))
	assert.Equal(t, `[{"sku":"GLP-1","qty":3}]`, row.Get(ledger.FieldItems))
	assert.Equal(t, "123456789012", row.Get(ledger.FieldTrackingNumber))
	assert.Equal(t, "yamato", row.Get(ledger.FieldCarrier))
	assert.Empty(t, row.Get(ledger.FieldRefundStatus))

	assert.Equal(t, 1, h.mirror.count())
	assert.Equal(t, []string{"P-100"}, h.notifier.seen())
	assert.Equal(t, float64(1), h.counter(t, "webhook_events_total", map[string]string{"kind": "payment_completed", "outcome": "applied"}))
}

func TestReplayedPaymentCompletedIsIdempotent(t *testing.T) {
	h := newHarness(t, "clinic-a")
	ctx := context.Background()

	first := h.router.Handle(ctx, []byte(completedBody))
	require.Equal(t, StatusApplied, first.Status)
	before := h.row(t, "pay_001")

	for i := 0; i < 3; i++ {
		replay := h.router.Handle(ctx, []byte(completedBody))
		require.Equal(t, StatusUnchanged, replay.Status)
	}

	assert.Equal(t, 1, h.rowCount(t))
	assert.Equal(t, before, h.row(t, "pay_001"))
	assert.Equal(t, 1, h.mirror.count(), "replays must not re-sync")
	assert.Len(t, h.notifier.seen(), 1)
}

func TestPartialUpdatesDoNotClobber(t *testing.T) {
	h := newHarness(t, "clinic-a")
	ctx := context.Background()

	require.True(t, h.router.Handle(ctx, []byte(completedBody)).OK())
	require.True(t, h.router.Handle(ctx, []byte(`{"kind":"payment_status","payment_id":"pay_001","payment_status":"captured"}`)).OK())
	out := h.router.Handle(ctx, []byte(`{"kind":"refund","payment_id":"pay_001","refund_status":"Completed","refunded_amount":12800,"refunded_at_iso":"2024-03-05T09:00:00+09:00","refund_id":"rf_9"}`))
	require.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, "P-100", out.PatientID)

	row := h.row(t, "pay_001")
	assert.Equal(t, "CAPTURED", row.Get(ledger.FieldPaymentStatus))
	assert.Equal(t, "completed", row.Get(ledger.FieldRefundStatus))
	assert.Equal(t, "12800", row.Get(ledger.FieldRefundedAmount))
	assert.Equal(t, "2024-03-05T00:00:00Z", row.Get(ledger.FieldRefundedAt))
	assert.Equal(t, "rf_9", row.Get(ledger.FieldRefundID))
	// untouched by the later events
	assert.Equal(t, "P-100", row.Get(ledger.FieldPatientID))
	assert.Equal(t, "09012345678", row.Get(ledger.FieldPhone))
	assert.Equal(t, "12800", row.Get(ledger.FieldAmount))
	assert.Equal(t, "150-0001", row.Get(ledger.FieldPostalCode))
	assert.Equal(t, 1, h.rowCount(t))
	assert.Equal(t, []string{"P-100", "P-100"}, h.notifier.seen())
}

func TestRefundBeforeCompletedConverges(t *testing.T) {
	refund := []byte(`{"kind":"refund","payment_id":"pay_001","refund_status":"pending","refunded_amount":"1,000","refund_id":"rf_1"}`)

	inOrder := newHarness(t, "clinic-a")
	ctx := context.Background()
	require.True(t, inOrder.router.Handle(ctx, []byte(completedBody)).OK())
	require.True(t, inOrder.router.Handle(ctx, refund).OK())

	reversed := newHarness(t, "clinic-a")
	stub := reversed.router.Handle(ctx, refund)
	require.Equal(t, StatusApplied, stub.Status)
	assert.Empty(t, stub.PatientID, "stub row has no patient yet")
	require.True(t, reversed.router.Handle(ctx, []byte(completedBody)).OK())

	want := inOrder.row(t, "pay_001")
	got := reversed.row(t, "pay_001")
	delete(want, ledger.FieldUpdatedAt)
	delete(got, ledger.FieldUpdatedAt)
	assert.Equal(t, want, got)
	assert.Equal(t, "pending", got.Get(ledger.FieldRefundStatus))
	assert.Equal(t, 1, reversed.rowCount(t))
}

func TestPaymentStatusCreatesStubRow(t *testing.T) {
	h := newHarness(t, "clinic-a")

	out := h.router.Handle(context.Background(), []byte(`{"kind":"payment_status","payment_id":"pay_404","payment_status":"failed"}`))
	require.Equal(t, StatusApplied, out.Status)

	row := h.row(t, "pay_404")
	assert.Equal(t, "FAILED", row.Get(ledger.FieldPaymentStatus))
	assert.Empty(t, row.Get(ledger.FieldPatientID))
	assert.Empty(t, row.Get(ledger.FieldAmount))
	assert.Empty(t, h.notifier.seen(), "status changes do not invalidate caches")
}

func TestMalformedAndUnknownEventsAreAcknowledged(t *testing.T) {
	h := newHarness(t, "clinic-a")
	ctx := context.Background()

	cases := map[string]struct {
		body string
		want Status
	}{
		"not json":        {body: `{"kind":`, want: StatusInvalid},
		"unknown kind":    {body: `{"kind":"chargeback","payment_id":"pay_1"}`, want: StatusIgnored},
		"missing kind":    {body: `{"payment_id":"pay_1"}`, want: StatusIgnored},
		"missing key":     {body: `{"kind":"payment_status","payment_status":"COMPLETED"}`, want: StatusInvalid},
		"blank status":    {body: `{"kind":"payment_status","payment_id":"pay_1","payment_status":"  "}`, want: StatusInvalid},
		"refund no state": {body: `{"kind":"refund","payment_id":"pay_1"}`, want: StatusInvalid},
		"wrong types":     {body: `{"kind":"payment_completed","payment_id":42}`, want: StatusInvalid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			out := h.router.Handle(ctx, []byte(tc.body))
			assert.Equal(t, tc.want, out.Status)
		})
	}
	assert.Equal(t, 0, h.rowCount(t))
	assert.Equal(t, 0, h.mirror.count())
}

func TestLockTimeoutAcknowledgesWithoutMutation(t *testing.T) {
	h := newHarness(t, "clinic-a")
	ctx := context.Background()

	release, err := h.guard.Acquire(ctx)
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	out := h.router.Handle(ctx, []byte(completedBody))
	assert.Equal(t, StatusBusy, out.Status)
	assert.ErrorIs(t, out.Err, lock.ErrTimeout)
	assert.Equal(t, 0, h.rowCount(t))
	assert.Equal(t, 0, h.mirror.count())
	assert.Empty(t, h.notifier.seen())
	assert.Equal(t, float64(1), h.counter(t, "webhook_events_total", map[string]string{"kind": "payment_completed", "outcome": "busy"}))
}

func TestMirrorFailureDoesNotBlockLedger(t *testing.T) {
	h := newHarness(t, "clinic-a")
	h.mirror.err = errors.New("queue full")

	out := h.router.Handle(context.Background(), []byte(completedBody))
	require.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, "COMPLETED", h.row(t, "pay_001").Get(ledger.FieldPaymentStatus))
	assert.Equal(t, []string{"P-100"}, h.notifier.seen())
}

func TestConcurrentDeliveriesKeepOneRow(t *testing.T) {
	h := newHarness(t, "clinic-a")
	h.guard = lock.NewLocalGuard(5 * time.Second)
	h.router.guard = h.guard
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"kind":"payment_status","payment_id":"pay_c","payment_status":"S%d"}`, i)
			h.router.Handle(ctx, []byte(body))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.rowCount(t))
}

func TestMergePatients(t *testing.T) {
	h := newHarness(t, "clinic-a")
	ctx := context.Background()

	for i, patient := range []string{"P-old", "P-old", "P-other", "P-old"} {
		body := fmt.Sprintf(`{"kind":"payment_completed","payment_id":"pay_%d","patient_id":%q}`, i, patient)
		require.True(t, h.router.Handle(ctx, []byte(body)).OK())
	}
	synced := h.mirror.count()

	out := h.router.Handle(ctx, []byte(`{"kind":"merge_patients","old_patient_id":"P-old","new_patient_id":"P-new"}`))
	require.Equal(t, StatusApplied, out.Status, out.Err)
	assert.Equal(t, 3, out.Updated)

	for _, key := range []string{"pay_0", "pay_1", "pay_3"} {
		assert.Equal(t, "P-new", h.row(t, key).Get(ledger.FieldPatientID))
	}
	assert.Equal(t, "P-other", h.row(t, "pay_2").Get(ledger.FieldPatientID))
	assert.Equal(t, synced+3, h.mirror.count())
	assert.Subset(t, h.notifier.seen(), []string{"P-old", "P-new"})

	again, err := h.router.MergePatients(ctx, "P-old", "P-new")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Updated)
}

func TestMergePatientsValidation(t *testing.T) {
	h := newHarness(t, "clinic-a")
	ctx := context.Background()

	_, err := h.router.MergePatients(ctx, " ", "P-1")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Equal(t, ReasonPatientIDsRequired, pkgerrors.ReasonOf(err))

	_, err = h.router.MergePatients(ctx, "P-1", " P-1 ")
	assert.Equal(t, ReasonSamePatientID, pkgerrors.ReasonOf(err))

	out := h.router.Handle(ctx, []byte(`{"kind":"merge_patients","old_patient_id":"P-1","new_patient_id":"P-1"}`))
	assert.Equal(t, StatusInvalid, out.Status)
	assert.Equal(t, ReasonSamePatientID, out.Reason)
	assert.Equal(t, enums.EventKindMergePatients, out.Kind)
}

func TestMergePatientsBusy(t *testing.T) {
	h := newHarness(t, "clinic-a")
	ctx := context.Background()

	release, err := h.guard.Acquire(ctx)
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	out := h.router.Merge(ctx, MergePatientsEvent{OldPatientID: "P-1", NewPatientID: "P-2"})
	assert.Equal(t, StatusBusy, out.Status)
	assert.Equal(t, ReasonBusy, out.Reason)
}

func TestNewRouterRequiresDeps(t *testing.T) {
	_, err := NewRouter(RouterParams{})
	assert.Error(t, err)
}
