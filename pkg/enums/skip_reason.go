package enums

// SkipReason explains why batch transcription dropped a candidate row.
// Reasons are evaluated in declaration order; the first match wins.
type SkipReason string

const (
	SkipReasonMissingKey    SkipReason = "missing_key"
	SkipReasonRefundPresent SkipReason = "refund_present"
	SkipReasonFailedStatus  SkipReason = "failed_status"
)

// SkipReasons lists every reason in evaluation order.
var SkipReasons = []SkipReason{
	SkipReasonMissingKey,
	SkipReasonRefundPresent,
	SkipReasonFailedStatus,
}

// String implements fmt.Stringer.
func (s SkipReason) String() string {
	return string(s)
}
