package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/pkg/enums"
	"go.uber.org/multierr"
)

// BatchReport summarizes an AppendBatch call.
type BatchReport struct {
	Total    int
	Appended int
	Merged   int
	Failed   int
	Skipped  map[enums.SkipReason]int
	// Rows holds the written rows in input order.
	Rows []Row
}

// SkippedTotal returns the number of excluded candidates.
func (r BatchReport) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

// Written returns the number of rows appended or merged.
func (r BatchReport) Written() int {
	return r.Appended + r.Merged
}

// ExclusionReason reports why a batch candidate must not be ledgered. Reasons
// are checked in enums.SkipReasons order and only the first match is returned.
func ExclusionReason(fields Fields) (enums.SkipReason, bool) {
	switch {
	case strings.TrimSpace(fields.Get(KeyField)) == "":
		return enums.SkipReasonMissingKey, true
	case normalize.RefundStatus(fields.Get(FieldRefundStatus)).Present():
		return enums.SkipReasonRefundPresent, true
	case normalize.PaymentStatus(fields.Get(FieldPaymentStatus)) == enums.PaymentStatusFailed:
		return enums.SkipReasonFailedStatus, true
	default:
		return "", false
	}
}

// AppendBatch transcribes candidate rows. Excluded candidates are counted in
// the report; rows whose key already exists are merged instead of duplicated.
// Per-row write failures do not stop the batch and are returned combined.
func (s *Store) AppendBatch(ctx context.Context, rows []Fields) (BatchReport, error) {
	report := BatchReport{
		Total:   len(rows),
		Skipped: make(map[enums.SkipReason]int, len(enums.SkipReasons)),
	}
	cm, err := bindColumns(ctx, s.sheet)
	if err != nil {
		return report, err
	}
	known, err := s.keyPositions(ctx, s.sheet, cm)
	if err != nil {
		return report, err
	}

	var errs error
	for i, candidate := range rows {
		if reason, skip := ExclusionReason(candidate); skip {
			report.Skipped[reason]++
			continue
		}
		key := strings.TrimSpace(candidate.Get(KeyField))
		pos, found := known[key]
		res, err := s.apply(ctx, s.sheet, cm, key, candidate.Compact(), pos, found)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("row %d (%s): %w", i+1, key, err))
			continue
		}
		if res.Created {
			report.Appended++
			known[key] = res.Row.Position
		} else {
			report.Merged++
			s.touchIndex(ctx, key, res.Row.Position)
		}
		report.Rows = append(report.Rows, res.Row)
	}
	return report, errs
}
