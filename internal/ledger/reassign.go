package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/clinicops-backend/internal/normalize"
)

// ReassignResult lists the rows rewritten by ReassignPatient.
type ReassignResult struct {
	Updated int
	Rows    []Row
}

// ReassignPatient rewrites patient_id from oldID to newID on every matching
// row. When the sheet is Transactional the rewrite is all-or-nothing.
func (s *Store) ReassignPatient(ctx context.Context, oldID, newID string) (ReassignResult, error) {
	oldID, newID = strings.TrimSpace(oldID), strings.TrimSpace(newID)
	if oldID == "" || newID == "" {
		return ReassignResult{}, fmt.Errorf("reassign: patient ids are required")
	}
	if oldID == newID {
		return ReassignResult{}, fmt.Errorf("reassign: patient ids must differ")
	}
	cm, err := bindColumns(ctx, s.sheet)
	if err != nil {
		return ReassignResult{}, err
	}

	var result ReassignResult
	rewrite := func(sheet Sheet) error {
		result = ReassignResult{}
		all, err := sheet.ReadAll(ctx)
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		stamp := normalize.FormatRevision(s.now())
		writes := cm.Encode(Fields{FieldPatientID: newID, FieldUpdatedAt: stamp})
		for i, cells := range all {
			fields := cm.Decode(cells)
			if fields.Get(FieldPatientID) != oldID {
				continue
			}
			pos := i + 1
			if err := sheet.WriteCells(ctx, pos, writes); err != nil {
				return fmt.Errorf("write row %d: %w", pos, err)
			}
			fields[FieldPatientID] = newID
			fields[FieldUpdatedAt] = stamp
			result.Rows = append(result.Rows, Row{Position: pos, Fields: fields})
		}
		result.Updated = len(result.Rows)
		return nil
	}

	if tx, ok := s.sheet.(Transactional); ok {
		err = tx.InTx(ctx, rewrite)
	} else {
		err = rewrite(s.sheet)
	}
	if err != nil {
		return ReassignResult{}, err
	}
	return result, nil
}
