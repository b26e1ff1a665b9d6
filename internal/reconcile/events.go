package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/clinicops-backend/pkg/enums"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

type envelope struct {
	Kind string `json:"kind"`
}

// PaymentStatusEvent is a status-only change for one payment.
type PaymentStatusEvent struct {
	PaymentID     string `json:"payment_id" validate:"required"`
	PaymentStatus string `json:"payment_status" validate:"required"`
}

// PaymentCompletedEvent carries the full order snapshot of a completed payment.
type PaymentCompletedEvent struct {
	PaymentID        string          `json:"payment_id" validate:"required"`
	OrderID          string          `json:"order_id"`
	PatientID        string          `json:"patient_id"`
	ProductCode      string          `json:"product_code"`
	OrderDatetimeISO string          `json:"order_datetime_iso"`
	Amount           any             `json:"amount"`
	PaymentStatus    string          `json:"payment_status"`
	ShipName         string          `json:"ship_name"`
	Postal           string          `json:"postal"`
	Address          string          `json:"address"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone"`
	Items            json.RawMessage `json:"items"`
	TrackingNumber   string          `json:"tracking_number"`
	ShippingDateISO  string          `json:"shipping_date_iso"`
}

// RefundEvent records a refund against a payment.
type RefundEvent struct {
	PaymentID      string `json:"payment_id" validate:"required"`
	RefundStatus   string `json:"refund_status" validate:"required"`
	RefundedAmount any    `json:"refunded_amount"`
	RefundedAtISO  string `json:"refunded_at_iso"`
	RefundID       string `json:"refund_id"`
}

// MergePatientsEvent asks for every row of OldPatientID to move to NewPatientID.
// Its ids are checked by MergePatients so failures carry a machine reason.
type MergePatientsEvent struct {
	OldPatientID string `json:"old_patient_id"`
	NewPatientID string `json:"new_patient_id"`
}

func decodeEnvelope(body []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	return strings.TrimSpace(env.Kind), nil
}

// EventKindOf returns the kind named by a raw delivery.
func EventKindOf(body []byte) (enums.EventKind, error) {
	raw, err := decodeEnvelope(body)
	if err != nil {
		return "", err
	}
	return enums.ParseEventKind(raw)
}

// decodePayload unmarshals body into dest keeping numbers as json.Number and
// runs struct validation.
func decodePayload(body []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(dest); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}

// itemsCell flattens the raw items value: JSON strings are unquoted, anything
// else is kept as compact JSON text.
func itemsCell(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
