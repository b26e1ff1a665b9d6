package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/pkg/enums"
)

// ShipmentRow mirrors the shipment_exports BigQuery schema.
type ShipmentRow struct {
	Instance       string             `bigquery:"instance"`
	PaymentID      string             `bigquery:"payment_id"`
	OrderID        string             `bigquery:"order_id"`
	PatientID      string             `bigquery:"patient_id"`
	ProductCode    string             `bigquery:"product_code"`
	Items          cbigquery.NullJSON `bigquery:"items"`
	OrderedAt      *time.Time         `bigquery:"ordered_at"`
	Amount         string             `bigquery:"amount"`
	ShipName       string             `bigquery:"ship_name"`
	PostalCode     string             `bigquery:"postal_code"`
	Address        string             `bigquery:"address"`
	Email          string             `bigquery:"email"`
	Phone          string             `bigquery:"phone"`
	TrackingNumber string             `bigquery:"tracking_number"`
	Carrier        string             `bigquery:"carrier"`
	ExportedAt     time.Time          `bigquery:"exported_at"`
}

// Save implements bigquery.ValueSaver. The insert id makes repeated exports of
// the same row within the streaming dedup window collapse into one.
func (r ShipmentRow) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"instance":        r.Instance,
		"payment_id":      r.PaymentID,
		"order_id":        r.OrderID,
		"patient_id":      r.PatientID,
		"product_code":    r.ProductCode,
		"amount":          r.Amount,
		"ship_name":       r.ShipName,
		"postal_code":     r.PostalCode,
		"address":         r.Address,
		"email":           r.Email,
		"phone":           r.Phone,
		"tracking_number": r.TrackingNumber,
		"carrier":         r.Carrier,
		"exported_at":     r.ExportedAt,
	}
	if r.Items.Valid {
		row["items"] = r.Items.JSONVal
	}
	if r.OrderedAt != nil {
		row["ordered_at"] = *r.OrderedAt
	}
	return row, r.InsertID(), nil
}

// InsertID is the streaming dedup key of the row.
func (r ShipmentRow) InsertID() string {
	return fmt.Sprintf("%s:%s", r.Instance, r.PaymentID)
}

// Ready reports whether a ledger row should be handed to the shipping feed:
// payment completed, no refund of any kind, not shipped yet.
func Ready(fields ledger.Fields) bool {
	if strings.TrimSpace(fields.Get(ledger.KeyField)) == "" {
		return false
	}
	if normalize.RefundStatus(fields.Get(ledger.FieldRefundStatus)).Present() {
		return false
	}
	if normalize.PaymentStatus(fields.Get(ledger.FieldPaymentStatus)) != enums.PaymentStatusCompleted {
		return false
	}
	return strings.TrimSpace(fields.Get(ledger.FieldShippingDate)) == ""
}

// BuildShipmentRow projects a ledger row into the export schema.
func BuildShipmentRow(instance string, row ledger.Row, exportedAt time.Time) ShipmentRow {
	f := row.Fields
	out := ShipmentRow{
		Instance:       instance,
		PaymentID:      f.Get(ledger.FieldPaymentID),
		OrderID:        f.Get(ledger.FieldOrderID),
		PatientID:      f.Get(ledger.FieldPatientID),
		ProductCode:    f.Get(ledger.FieldProductCode),
		Items:          encodeItems(f.Get(ledger.FieldItems)),
		Amount:         f.Get(ledger.FieldAmount),
		ShipName:       f.Get(ledger.FieldShipName),
		PostalCode:     f.Get(ledger.FieldPostalCode),
		Address:        f.Get(ledger.FieldAddress),
		Email:          f.Get(ledger.FieldEmail),
		Phone:          f.Get(ledger.FieldPhone),
		TrackingNumber: f.Get(ledger.FieldTrackingNumber),
		Carrier:        f.Get(ledger.FieldCarrier),
		ExportedAt:     exportedAt.UTC(),
	}
	if t, ok := normalize.Timestamp(f.Get(ledger.FieldOrderDatetime)); ok {
		out.OrderedAt = &t
	}
	return out
}

// encodeItems keeps JSON item lists as-is and wraps free text as a JSON string.
func encodeItems(raw string) cbigquery.NullJSON {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return cbigquery.NullJSON{}
	}
	if json.Valid([]byte(raw)) {
		return cbigquery.NullJSON{Valid: true, JSONVal: raw}
	}
	quoted, err := json.Marshal(raw)
	if err != nil {
		return cbigquery.NullJSON{}
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(quoted)}
}
