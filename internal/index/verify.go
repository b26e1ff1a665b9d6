package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
)

// Report lists index defects found by Verify.
type Report struct {
	Checked int
	// Missing keys exist in the ledger but not in the index.
	Missing []string
	// Stale keys point at the wrong position or hold malformed values.
	Stale []string
	// Orphaned keys are indexed but absent from the ledger.
	Orphaned []string
}

// Clean reports whether no defects were found.
func (r Report) Clean() bool {
	return len(r.Missing) == 0 && len(r.Stale) == 0 && len(r.Orphaned) == 0
}

// Verify compares idx against the authoritative key positions of the ledger.
func Verify(ctx context.Context, idx Index, positions map[string]int) (Report, error) {
	entries, err := idx.Entries(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list index entries: %w", err)
	}
	report := Report{Checked: len(positions)}
	for key, pos := range positions {
		entry, ok := entries[key]
		switch {
		case !ok:
			report.Missing = append(report.Missing, key)
		case entry.Position != pos:
			report.Stale = append(report.Stale, key)
		}
	}
	for key := range entries {
		if _, ok := positions[key]; !ok {
			report.Orphaned = append(report.Orphaned, key)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Stale)
	sort.Strings(report.Orphaned)
	return report, nil
}

// Repair rewrites the defects listed in report. Every write is attempted;
// failures are returned combined.
func Repair(ctx context.Context, idx Index, positions map[string]int, report Report, at time.Time) error {
	var errs error
	for _, group := range [][]string{report.Missing, report.Stale} {
		for _, key := range group {
			if err := idx.Upsert(ctx, key, positions[key], at); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("upsert %s: %w", key, err))
			}
		}
	}
	if len(report.Orphaned) > 0 {
		if err := idx.Delete(ctx, report.Orphaned...); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete orphans: %w", err))
		}
	}
	return errs
}
