package normalize

import (
	"strings"

	"github.com/angelmondragon/clinicops-backend/pkg/enums"
)

// PaymentStatus upper-cases provider statuses.
func PaymentStatus(raw string) enums.PaymentStatus {
	return enums.NormalizePaymentStatus(raw)
}

// RefundStatus lower-cases refund statuses.
func RefundStatus(raw string) enums.RefundStatus {
	return enums.NormalizeRefundStatus(raw)
}

// Text trims and collapses internal whitespace runs to a single space.
func Text(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Email trims and lower-cases an address.
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
