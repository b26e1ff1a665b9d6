package enums

import (
	"fmt"
	"strings"
)

// RefundStatus tracks a refund attached to a ledger row. The empty value means
// the row carries no refund.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = ""
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusNone,
	RefundStatusPending,
	RefundStatusCompleted,
}

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// Present reports whether a refund has been recorded.
func (r RefundStatus) Present() bool {
	return r != RefundStatusNone
}

// NormalizeRefundStatus trims and lower-cases a refund status.
func NormalizeRefundStatus(value string) RefundStatus {
	return RefundStatus(strings.ToLower(strings.TrimSpace(value)))
}

// ParseRefundStatus converts raw input into a known RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	normalized := NormalizeRefundStatus(value)
	for _, candidate := range validRefundStatuses {
		if candidate == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
