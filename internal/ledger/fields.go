package ledger

import "strings"

// Field is a logical ledger column.
type Field string

const (
	FieldPaymentID      Field = "payment_id"
	FieldOrderID        Field = "order_id"
	FieldPatientID      Field = "patient_id"
	FieldProductCode    Field = "product_code"
	FieldItems          Field = "items"
	FieldOrderDatetime  Field = "order_datetime"
	FieldAmount         Field = "amount"
	FieldPaymentStatus  Field = "payment_status"
	FieldShipName       Field = "ship_name"
	FieldPostalCode     Field = "postal_code"
	FieldAddress        Field = "address"
	FieldEmail          Field = "email"
	FieldPhone          Field = "phone"
	FieldShippingDate   Field = "shipping_date"
	FieldShippingStatus Field = "shipping_status"
	FieldTrackingNumber Field = "tracking_number"
	FieldCarrier        Field = "carrier"
	FieldRefundStatus   Field = "refund_status"
	FieldRefundedAmount Field = "refunded_amount"
	FieldRefundedAt     Field = "refunded_at"
	FieldRefundID       Field = "refund_id"
	FieldUpdatedAt      Field = "updated_at"
)

// KeyField is the business key column.
const KeyField = FieldPaymentID

// AllFields lists the logical columns in the order a fresh sheet is laid out.
var AllFields = []Field{
	FieldPaymentID,
	FieldOrderID,
	FieldPatientID,
	FieldProductCode,
	FieldItems,
	FieldOrderDatetime,
	FieldAmount,
	FieldPaymentStatus,
	FieldShipName,
	FieldPostalCode,
	FieldAddress,
	FieldEmail,
	FieldPhone,
	FieldShippingDate,
	FieldShippingStatus,
	FieldTrackingNumber,
	FieldCarrier,
	FieldRefundStatus,
	FieldRefundedAmount,
	FieldRefundedAt,
	FieldRefundID,
	FieldUpdatedAt,
}

// headerAliases maps normalized header text to logical fields. Canonical
// names resolve without an entry.
var headerAliases = map[string]Field{
	"paymentid":     FieldPaymentID,
	"payment":       FieldPaymentID,
	"決済id":          FieldPaymentID,
	"orderid":       FieldOrderID,
	"注文id":          FieldOrderID,
	"patientid":     FieldPatientID,
	"patient":       FieldPatientID,
	"患者id":          FieldPatientID,
	"product":       FieldProductCode,
	"productcode":   FieldProductCode,
	"sku":           FieldProductCode,
	"line_items":    FieldItems,
	"order_date":    FieldOrderDatetime,
	"ordered_at":    FieldOrderDatetime,
	"注文日時":          FieldOrderDatetime,
	"total":         FieldAmount,
	"金額":            FieldAmount,
	"status":        FieldPaymentStatus,
	"決済ステータス":       FieldPaymentStatus,
	"name":          FieldShipName,
	"shipping_name": FieldShipName,
	"postal":        FieldPostalCode,
	"zip":           FieldPostalCode,
	"郵便番号":          FieldPostalCode,
	"住所":            FieldAddress,
	"mail":          FieldEmail,
	"tel":           FieldPhone,
	"phone_number":  FieldPhone,
	"電話番号":          FieldPhone,
	"shipped_at":    FieldShippingDate,
	"発送日":           FieldShippingDate,
	"tracking":      FieldTrackingNumber,
	"tracking_no":   FieldTrackingNumber,
	"追跡番号":          FieldTrackingNumber,
	"refund":        FieldRefundStatus,
	"refund_amount": FieldRefundedAmount,
	"refund_date":   FieldRefundedAt,
	"last_updated":  FieldUpdatedAt,
	"updated":       FieldUpdatedAt,
}

var canonicalFields = func() map[Field]struct{} {
	out := make(map[Field]struct{}, len(AllFields))
	for _, f := range AllFields {
		out[f] = struct{}{}
	}
	return out
}()

// FieldForHeader resolves a header cell to a logical field.
func FieldForHeader(header string) (Field, bool) {
	norm := normalizeHeader(header)
	if norm == "" {
		return "", false
	}
	if _, ok := canonicalFields[Field(norm)]; ok {
		return Field(norm), true
	}
	if f, ok := headerAliases[norm]; ok {
		return f, true
	}
	if f, ok := headerAliases[strings.ReplaceAll(norm, "_", "")]; ok {
		return f, true
	}
	return "", false
}

func normalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.NewReplacer(" ", "_", "-", "_", "　", "_").Replace(h)
	return strings.Trim(h, "_")
}

// Fields is a partial set of cell values keyed by logical field. Only the
// fields present are written on update.
type Fields map[Field]string

// Get returns the value of f, or "".
func (f Fields) Get(field Field) string {
	if f == nil {
		return ""
	}
	return f[field]
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Compact returns a copy without blank values, so a merge never clears a cell.
func (f Fields) Compact() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}
