package mirror

import (
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/pkg/db/models"
	"github.com/shopspring/decimal"
)

// Project builds the mirror record of a ledger row.
func Project(instance string, row ledger.Row, syncedAt time.Time) models.PaymentOrder {
	f := row.Fields
	return models.PaymentOrder{
		ID:             row.Key(),
		Instance:       instance,
		OrderID:        f.Get(ledger.FieldOrderID),
		PatientID:      f.Get(ledger.FieldPatientID),
		ProductCode:    f.Get(ledger.FieldProductCode),
		Items:          f.Get(ledger.FieldItems),
		OrderedAt:      timeCell(f.Get(ledger.FieldOrderDatetime)),
		Amount:         amountCell(f.Get(ledger.FieldAmount)),
		PaymentStatus:  f.Get(ledger.FieldPaymentStatus),
		ShipName:       f.Get(ledger.FieldShipName),
		PostalCode:     f.Get(ledger.FieldPostalCode),
		Address:        f.Get(ledger.FieldAddress),
		Email:          f.Get(ledger.FieldEmail),
		Phone:          f.Get(ledger.FieldPhone),
		ShippingDate:   timeCell(f.Get(ledger.FieldShippingDate)),
		ShippingStatus: f.Get(ledger.FieldShippingStatus),
		TrackingNumber: f.Get(ledger.FieldTrackingNumber),
		Carrier:        f.Get(ledger.FieldCarrier),
		RefundStatus:   f.Get(ledger.FieldRefundStatus),
		RefundedAmount: amountCell(f.Get(ledger.FieldRefundedAmount)),
		RefundedAt:     timeCell(f.Get(ledger.FieldRefundedAt)),
		RefundID:       f.Get(ledger.FieldRefundID),
		LedgerUpdated:  timeCell(f.Get(ledger.FieldUpdatedAt)),
		SyncedAt:       syncedAt.UTC(),
	}
}

func timeCell(raw string) *time.Time {
	t, ok := normalize.Timestamp(raw)
	if !ok {
		return nil
	}
	return &t
}

func amountCell(raw string) decimal.NullDecimal {
	d, ok := normalize.Amount(raw)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
