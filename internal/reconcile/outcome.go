package reconcile

import "github.com/angelmondragon/clinicops-backend/pkg/enums"

// Status classifies how an inbound event was handled. Every status is
// acknowledged to the sender.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusUnchanged Status = "unchanged"
	StatusIgnored   Status = "ignored"
	StatusInvalid   Status = "invalid"
	StatusBusy      Status = "busy"
	StatusFailed    Status = "failed"
)

// Outcome is the result of routing one event.
type Outcome struct {
	Kind      enums.EventKind
	Status    Status
	PaymentID string
	PatientID string
	// Updated is the number of rows rewritten by a patient merge.
	Updated int
	// Reason is the machine reason of a rejected merge.
	Reason string
	Err    error
}

// OK reports whether the event left the ledger in the requested state.
func (o Outcome) OK() bool {
	return o.Status == StatusApplied || o.Status == StatusUnchanged
}

func (o Outcome) kindLabel() string {
	if o.Kind == "" {
		return "unknown"
	}
	return o.Kind.String()
}
