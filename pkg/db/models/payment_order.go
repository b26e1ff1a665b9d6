package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentOrder is the relational mirror of a ledger row keyed by payment id.
type PaymentOrder struct {
	ID             string              `gorm:"column:id;primaryKey"`
	Instance       string              `gorm:"column:instance;not null;index"`
	OrderID        string              `gorm:"column:order_id"`
	PatientID      string              `gorm:"column:patient_id;index"`
	ProductCode    string              `gorm:"column:product_code"`
	Items          string              `gorm:"column:items"`
	OrderedAt      *time.Time          `gorm:"column:ordered_at"`
	Amount         decimal.NullDecimal `gorm:"column:amount;type:numeric(14,2)"`
	PaymentStatus  string              `gorm:"column:payment_status"`
	ShipName       string              `gorm:"column:ship_name"`
	PostalCode     string              `gorm:"column:postal_code"`
	Address        string              `gorm:"column:address"`
	Email          string              `gorm:"column:email"`
	Phone          string              `gorm:"column:phone"`
	ShippingDate   *time.Time          `gorm:"column:shipping_date"`
	ShippingStatus string              `gorm:"column:shipping_status"`
	TrackingNumber string              `gorm:"column:tracking_number"`
	Carrier        string              `gorm:"column:carrier"`
	RefundStatus   string              `gorm:"column:refund_status"`
	RefundedAmount decimal.NullDecimal `gorm:"column:refunded_amount;type:numeric(14,2)"`
	RefundedAt     *time.Time          `gorm:"column:refunded_at"`
	RefundID       string              `gorm:"column:refund_id"`
	LedgerUpdated  *time.Time          `gorm:"column:ledger_updated_at"`
	SyncedAt       time.Time           `gorm:"column:synced_at"`
}

func (PaymentOrder) TableName() string { return "payment_orders" }
