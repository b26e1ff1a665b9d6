package normalize

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{in: "¥12,800", want: "12800", ok: true},
		{in: "12800円", want: "12800", ok: true},
		{in: "JPY 3,300", want: "3300", ok: true},
		{in: json.Number("1980.5"), want: "1980.5", ok: true},
		{in: float64(500), want: "500", ok: true},
		{in: 42, want: "42", ok: true},
		{in: decimal.RequireFromString("7.25"), want: "7.25", ok: true},
		{in: "", ok: false},
		{in: "free", ok: false},
		{in: nil, ok: false},
		{in: []int{1}, ok: false},
	}
	for _, tt := range tests {
		got, ok := Amount(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, FormatAmount(got), "%v", tt.in)
		}
	}
}

func TestStatusAndText(t *testing.T) {
	assert.Equal(t, "COMPLETED", PaymentStatus(" completed ").String())
	assert.Equal(t, "pending", RefundStatus(" Pending").String())
	assert.Equal(t, "山田 太郎", Text("  山田   太郎 "))
	assert.Equal(t, "a@example.com", Email(" A@Example.com "))
}
