package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/lock"
	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clinicops-backend/pkg/errors"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/metrics"
)

type mirrorQueue interface {
	Enqueue(ctx context.Context, instance string, rows ...ledger.Row) error
}

type invalidator interface {
	Notify(ctx context.Context, patientIDs ...string)
}

// RouterParams configure a Router for one ledger instance.
type RouterParams struct {
	Store    *ledger.Store
	Guard    lock.Guard
	Mirror   mirrorQueue
	Notifier invalidator
	Logger   *logger.Logger
	Metrics  *metrics.PipelineMetrics
	Times    normalize.TimeParser
	Clock    func() time.Time
}

// Router applies payment events to one ledger instance. Every mutation runs
// under the instance guard; mirror sync and cache invalidation happen after
// the guard is released.
type Router struct {
	store    *ledger.Store
	guard    lock.Guard
	mirror   mirrorQueue
	notifier invalidator
	logg     *logger.Logger
	metrics  *metrics.PipelineMetrics
	times    normalize.TimeParser
	now      func() time.Time
}

func NewRouter(p RouterParams) (*Router, error) {
	if p.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger store required")
	}
	if p.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger guard required")
	}
	if p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	return &Router{
		store:    p.Store,
		guard:    p.Guard,
		mirror:   p.Mirror,
		notifier: p.Notifier,
		logg:     p.Logger,
		metrics:  p.Metrics,
		times:    p.Times,
		now:      now,
	}, nil
}

// Instance returns the ledger instance this router writes to.
func (r *Router) Instance() string {
	return r.store.Instance()
}

// Store exposes the underlying ledger store for read paths.
func (r *Router) Store() *ledger.Store {
	return r.store
}

// Handle decodes a raw webhook body and routes it by kind. It never returns
// an error: every failure is folded into the Outcome and logged.
func (r *Router) Handle(ctx context.Context, body []byte) Outcome {
	ctx = r.logg.WithInstance(ctx, r.Instance())

	rawKind, err := decodeEnvelope(body)
	if err != nil {
		return r.finish(ctx, Outcome{Status: StatusInvalid, Err: err})
	}
	kind, err := enums.ParseEventKind(rawKind)
	if err != nil {
		return r.finish(ctx, Outcome{Status: StatusIgnored, Err: err})
	}

	switch kind {
	case enums.EventKindPaymentStatus:
		var ev PaymentStatusEvent
		if err := decodePayload(body, &ev); err != nil {
			return r.finish(ctx, Outcome{Kind: kind, Status: StatusInvalid, Err: err})
		}
		return r.PaymentStatus(ctx, ev)
	case enums.EventKindPaymentCompleted:
		var ev PaymentCompletedEvent
		if err := decodePayload(body, &ev); err != nil {
			return r.finish(ctx, Outcome{Kind: kind, Status: StatusInvalid, Err: err})
		}
		return r.PaymentCompleted(ctx, ev)
	case enums.EventKindRefund:
		var ev RefundEvent
		if err := decodePayload(body, &ev); err != nil {
			return r.finish(ctx, Outcome{Kind: kind, Status: StatusInvalid, Err: err})
		}
		return r.Refund(ctx, ev)
	case enums.EventKindMergePatients:
		var ev MergePatientsEvent
		if err := decodePayload(body, &ev); err != nil {
			return r.finish(ctx, Outcome{Kind: kind, Status: StatusInvalid, Reason: ReasonPatientIDsRequired, Err: err})
		}
		return r.Merge(ctx, ev)
	default:
		return r.finish(ctx, Outcome{Kind: kind, Status: StatusIgnored})
	}
}

// PaymentStatus records a status-only change. A missing row is created with
// just the key and the status.
func (r *Router) PaymentStatus(ctx context.Context, ev PaymentStatusEvent) Outcome {
	kind := enums.EventKindPaymentStatus
	key := strings.TrimSpace(ev.PaymentID)
	status := normalize.PaymentStatus(ev.PaymentStatus)
	if key == "" || status == "" {
		return r.finish(ctx, Outcome{Kind: kind, Status: StatusInvalid, PaymentID: key, Err: errors.New("payment_id and payment_status are required")})
	}
	out := r.mutate(ctx, kind, key, ledger.Fields{ledger.FieldPaymentStatus: status.String()})
	return r.finish(ctx, out)
}

// PaymentCompleted merges the order snapshot into the ledger. Fields absent
// from the event are left untouched.
func (r *Router) PaymentCompleted(ctx context.Context, ev PaymentCompletedEvent) Outcome {
	kind := enums.EventKindPaymentCompleted
	key := strings.TrimSpace(ev.PaymentID)
	if key == "" {
		return r.finish(ctx, Outcome{Kind: kind, Status: StatusInvalid, Err: errors.New("payment_id is required")})
	}

	fields := ledger.Fields{}
	set := func(f ledger.Field, v string) {
		if v != "" {
			fields[f] = v
		}
	}

	status := normalize.PaymentStatus(ev.PaymentStatus)
	if status == "" {
		status = enums.PaymentStatusCompleted
	}
	fields[ledger.FieldPaymentStatus] = status.String()

	set(ledger.FieldOrderID, strings.TrimSpace(ev.OrderID))
	set(ledger.FieldPatientID, strings.TrimSpace(ev.PatientID))
	set(ledger.FieldProductCode, normalize.Text(ev.ProductCode))
	set(ledger.FieldItems, itemsCell(ev.Items))
	set(ledger.FieldShipName, normalize.Text(ev.ShipName))
	set(ledger.FieldPostalCode, normalize.PostalCode(ev.Postal))
	set(ledger.FieldAddress, normalize.Text(ev.Address))
	set(ledger.FieldEmail, normalize.Email(ev.Email))
	set(ledger.FieldPhone, normalize.Phone(ev.Phone))
	if amount, ok := normalize.Amount(ev.Amount); ok {
		fields[ledger.FieldAmount] = normalize.FormatAmount(amount)
	}
	set(ledger.FieldOrderDatetime, r.timestampCell(ctx, "order_datetime_iso", ev.OrderDatetimeISO))
	set(ledger.FieldShippingDate, r.timestampCell(ctx, "shipping_date_iso", ev.ShippingDateISO))
	if tracking := normalize.TrackingNumber(ev.TrackingNumber); tracking != "" {
		fields[ledger.FieldTrackingNumber] = tracking
		set(ledger.FieldCarrier, normalize.InferCarrier(tracking).String())
	}

	out := r.mutate(ctx, kind, key, fields)
	if out.Status == StatusApplied {
		r.invalidate(ctx, out.PatientID)
	}
	return r.finish(ctx, out)
}

// Refund merges refund fields. A missing row is created as a stub so the
// refund survives arriving before the payment.
func (r *Router) Refund(ctx context.Context, ev RefundEvent) Outcome {
	kind := enums.EventKindRefund
	key := strings.TrimSpace(ev.PaymentID)
	status := normalize.RefundStatus(ev.RefundStatus)
	if key == "" || !status.Present() {
		return r.finish(ctx, Outcome{Kind: kind, Status: StatusInvalid, PaymentID: key, Err: errors.New("payment_id and refund_status are required")})
	}

	fields := ledger.Fields{ledger.FieldRefundStatus: status.String()}
	if amount, ok := normalize.Amount(ev.RefundedAmount); ok {
		fields[ledger.FieldRefundedAmount] = normalize.FormatAmount(amount)
	}
	if at := r.timestampCell(ctx, "refunded_at_iso", ev.RefundedAtISO); at != "" {
		fields[ledger.FieldRefundedAt] = at
	}
	if id := strings.TrimSpace(ev.RefundID); id != "" {
		fields[ledger.FieldRefundID] = id
	}

	out := r.mutate(ctx, kind, key, fields)
	if out.Status == StatusApplied {
		r.invalidate(ctx, out.PatientID)
	}
	return r.finish(ctx, out)
}

// mutate runs one upsert under the guard. Mirror sync is queued after release.
func (r *Router) mutate(ctx context.Context, kind enums.EventKind, key string, fields ledger.Fields) Outcome {
	ctx = r.logg.WithPaymentID(ctx, key)
	out := Outcome{Kind: kind, PaymentID: key}

	var res ledger.UpsertResult
	err := r.locked(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.store.UpsertRow(ctx, key, fields)
		return err
	})
	switch {
	case errors.Is(err, lock.ErrTimeout):
		out.Status = StatusBusy
		out.Err = err
		return out
	case err != nil:
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	out.PatientID = res.Row.Fields.Get(ledger.FieldPatientID)
	if !res.Changed {
		out.Status = StatusUnchanged
		return out
	}
	out.Status = StatusApplied
	r.syncMirror(ctx, res.Row)
	return out
}

// locked runs fn while holding the instance guard and records the wait.
func (r *Router) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	start := r.now()
	return lock.WithLock(ctx, r.guard, func(ctx context.Context) error {
		r.metrics.ObserveLockWait(r.Instance(), r.now().Sub(start))
		return fn(ctx)
	})
}

func (r *Router) syncMirror(ctx context.Context, rows ...ledger.Row) {
	if r.mirror == nil || len(rows) == 0 {
		return
	}
	if err := r.mirror.Enqueue(ctx, r.Instance(), rows...); err != nil {
		r.logg.Warn(ctx, fmt.Sprintf("mirror sync not queued: %v", err))
	}
}

func (r *Router) invalidate(ctx context.Context, patientIDs ...string) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(ctx, patientIDs...)
}

func (r *Router) timestampCell(ctx context.Context, name, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	cell := r.times.CanonicalTimestamp(raw)
	if cell == "" {
		r.logg.Warn(ctx, fmt.Sprintf("ignoring unparseable %s %q", name, raw))
	}
	return cell
}

func (r *Router) finish(ctx context.Context, out Outcome) Outcome {
	r.metrics.IncEvent(out.kindLabel(), string(out.Status))

	if out.PaymentID != "" {
		ctx = r.logg.WithPaymentID(ctx, out.PaymentID)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_kind": out.kindLabel(),
		"outcome":    string(out.Status),
	})
	switch out.Status {
	case StatusApplied, StatusUnchanged:
		r.logg.Info(ctx, "payment event reconciled")
	case StatusFailed:
		r.logg.Error(ctx, "payment event failed", out.Err)
	default:
		msg := "payment event acknowledged without mutation"
		if out.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, out.Err)
		}
		r.logg.Warn(ctx, msg)
	}
	return out
}
