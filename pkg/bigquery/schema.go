package bigquery

import "cloud.google.com/go/bigquery"

// ShipmentsSchema is the shipping feed table written by shipment-export.
// One row per completed, unrefunded, unshipped payment.
var ShipmentsSchema = bigquery.Schema{
	{Name: "instance", Type: bigquery.StringFieldType, Required: true},
	{Name: "payment_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "order_id", Type: bigquery.StringFieldType},
	{Name: "patient_id", Type: bigquery.StringFieldType},
	{Name: "product_code", Type: bigquery.StringFieldType},
	{Name: "items", Type: bigquery.JSONFieldType},
	{Name: "ordered_at", Type: bigquery.TimestampFieldType},
	{Name: "amount", Type: bigquery.StringFieldType},
	{Name: "ship_name", Type: bigquery.StringFieldType},
	{Name: "postal_code", Type: bigquery.StringFieldType},
	{Name: "address", Type: bigquery.StringFieldType},
	{Name: "email", Type: bigquery.StringFieldType},
	{Name: "phone", Type: bigquery.StringFieldType},
	{Name: "tracking_number", Type: bigquery.StringFieldType},
	{Name: "carrier", Type: bigquery.StringFieldType},
	{Name: "exported_at", Type: bigquery.TimestampFieldType, Required: true},
}

const shipmentsPartitionField = "exported_at"

// tableSpec describes a table the client checks (and may create) at startup.
type tableSpec struct {
	name      string
	schema    bigquery.Schema
	partition string
}

func (t tableSpec) metadata() *bigquery.TableMetadata {
	md := &bigquery.TableMetadata{Schema: t.schema}
	if t.partition != "" {
		md.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: t.partition,
		}
	}
	return md
}
