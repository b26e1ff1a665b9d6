package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/pkg/enums"
)

// Transcribe bulk-loads candidate rows under the instance guard. Candidates
// are canonicalized first, then filtered by ledger.ExclusionReason. Written
// rows are queued for mirror sync.
func (r *Router) Transcribe(ctx context.Context, rows []ledger.Fields) (ledger.BatchReport, error) {
	ctx = r.logg.WithInstance(ctx, r.Instance())

	candidates := make([]ledger.Fields, 0, len(rows))
	for _, raw := range rows {
		candidates = append(candidates, r.Canonicalize(raw))
	}

	var (
		report   ledger.BatchReport
		batchErr error
	)
	err := r.locked(ctx, func(ctx context.Context) error {
		var err error
		report, err = r.store.AppendBatch(ctx, candidates)
		// per-row failures are reported, not fatal to the batch
		batchErr = err
		return nil
	})
	if err != nil {
		return report, err
	}

	for _, reason := range enums.SkipReasons {
		r.metrics.AddSkipped(reason.String(), report.Skipped[reason])
	}
	r.syncMirror(ctx, report.Rows...)

	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"total":    report.Total,
		"appended": report.Appended,
		"merged":   report.Merged,
		"skipped":  report.SkippedTotal(),
		"failed":   report.Failed,
	}), "batch transcription finished")

	if batchErr != nil {
		return report, fmt.Errorf("transcribe: %w", batchErr)
	}
	return report, nil
}

// Canonicalize rewrites raw cell values into the canonical ledger form.
// Values that cannot be parsed are kept verbatim; values that normalize to
// nothing are dropped.
func (r *Router) Canonicalize(raw ledger.Fields) ledger.Fields {
	out := make(ledger.Fields, len(raw))
	for f, v := range raw {
		v = strings.TrimSpace(v)
		switch f {
		case ledger.FieldPaymentStatus:
			v = normalize.PaymentStatus(v).String()
		case ledger.FieldRefundStatus:
			v = normalize.RefundStatus(v).String()
		case ledger.FieldPhone:
			v = normalize.Phone(v)
		case ledger.FieldPostalCode:
			v = normalize.PostalCode(v)
		case ledger.FieldEmail:
			v = normalize.Email(v)
		case ledger.FieldShipName, ledger.FieldAddress, ledger.FieldProductCode:
			v = normalize.Text(v)
		case ledger.FieldTrackingNumber:
			v = normalize.TrackingNumber(v)
		case ledger.FieldAmount, ledger.FieldRefundedAmount:
			if d, ok := normalize.Amount(v); ok {
				v = normalize.FormatAmount(d)
			}
		case ledger.FieldOrderDatetime, ledger.FieldShippingDate, ledger.FieldRefundedAt:
			if cell := r.times.CanonicalTimestamp(v); cell != "" {
				v = cell
			}
		}
		if v == "" {
			continue
		}
		out[f] = v
	}
	if tracking := out.Get(ledger.FieldTrackingNumber); tracking != "" && out.Get(ledger.FieldCarrier) == "" {
		if carrier := normalize.InferCarrier(tracking); carrier != enums.CarrierNone {
			out[ledger.FieldCarrier] = carrier.String()
		}
	}
	return out
}
