package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus is the provider-reported state of a payment attempt. Providers
// may report values outside the known set; those are kept verbatim (upper-cased).
type PaymentStatus string

const (
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusCanceled   PaymentStatus = "CANCELED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusPending,
	PaymentStatusAuthorized,
	PaymentStatusCanceled,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// NormalizePaymentStatus trims and upper-cases a provider status.
func NormalizePaymentStatus(value string) PaymentStatus {
	return PaymentStatus(strings.ToUpper(strings.TrimSpace(value)))
}

// ParsePaymentStatus converts raw input into a known PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	normalized := NormalizePaymentStatus(value)
	for _, candidate := range validPaymentStatuses {
		if candidate == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
