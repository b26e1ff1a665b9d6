package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/lock"
	"github.com/angelmondragon/clinicops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clinicops-backend/pkg/errors"
)

// Machine reasons reported by a rejected merge.
const (
	ReasonPatientIDsRequired = "patient_ids_required"
	ReasonSamePatientID      = "same_patient_id"
	ReasonBusy               = "busy"
	ReasonInternal           = "internal"
)

// MergePatients moves every ledger row of oldID to newID while holding the
// instance guard for the whole rewrite. Rewritten rows are re-synced to the
// mirror and both patients' caches are invalidated.
func (r *Router) MergePatients(ctx context.Context, oldID, newID string) (ledger.ReassignResult, error) {
	oldID, newID = strings.TrimSpace(oldID), strings.TrimSpace(newID)
	if oldID == "" || newID == "" {
		return ledger.ReassignResult{}, pkgerrors.New(pkgerrors.CodeValidation, "old and new patient ids are required").
			WithReason(ReasonPatientIDsRequired)
	}
	if oldID == newID {
		return ledger.ReassignResult{}, pkgerrors.New(pkgerrors.CodeValidation, "patient ids must differ").
			WithReason(ReasonSamePatientID)
	}

	var res ledger.ReassignResult
	err := r.locked(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.store.ReassignPatient(ctx, oldID, newID)
		return err
	})
	switch {
	case errors.Is(err, lock.ErrTimeout):
		return ledger.ReassignResult{}, pkgerrors.Wrap(pkgerrors.CodeBusy, err, "ledger busy").WithReason(ReasonBusy)
	case err != nil:
		return ledger.ReassignResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge patients").WithReason(ReasonInternal)
	}

	if res.Updated > 0 {
		r.syncMirror(ctx, res.Rows...)
		r.invalidate(ctx, oldID, newID)
	}
	return res, nil
}

// Merge is the webhook form of MergePatients.
func (r *Router) Merge(ctx context.Context, ev MergePatientsEvent) Outcome {
	out := Outcome{Kind: enums.EventKindMergePatients}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"old_patient_id": strings.TrimSpace(ev.OldPatientID),
		"new_patient_id": strings.TrimSpace(ev.NewPatientID),
	})

	res, err := r.MergePatients(ctx, ev.OldPatientID, ev.NewPatientID)
	if err != nil {
		out.Err = err
		out.Reason = pkgerrors.ReasonOf(err)
		switch pkgerrors.As(err).Code() {
		case pkgerrors.CodeValidation:
			out.Status = StatusInvalid
		case pkgerrors.CodeBusy:
			out.Status = StatusBusy
		default:
			out.Status = StatusFailed
		}
		return r.finish(ctx, out)
	}

	out.Updated = res.Updated
	out.PatientID = strings.TrimSpace(ev.NewPatientID)
	out.Status = StatusUnchanged
	if res.Updated > 0 {
		out.Status = StatusApplied
	}
	return r.finish(ctx, out)
}
