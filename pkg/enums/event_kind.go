package enums

import "fmt"

// EventKind discriminates inbound payment webhooks.
type EventKind string

const (
	EventKindPaymentStatus    EventKind = "payment_status"
	EventKindPaymentCompleted EventKind = "payment_completed"
	EventKindRefund           EventKind = "refund"
	EventKindMergePatients    EventKind = "merge_patients"
)

var validEventKinds = []EventKind{
	EventKindPaymentStatus,
	EventKindPaymentCompleted,
	EventKindRefund,
	EventKindMergePatients,
}

// String implements fmt.Stringer.
func (k EventKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known EventKind.
func (k EventKind) IsValid() bool {
	for _, candidate := range validEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseEventKind converts raw input into an EventKind.
func ParseEventKind(value string) (EventKind, error) {
	for _, candidate := range validEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event kind %q", value)
}
