package normalize

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

var amountNoise = strings.NewReplacer(
	"¥", "", "￥", "", "円", "", "JPY", "", "jpy", "",
	",", "", "，", "", " ", "", "\u00a0", "",
)

// Amount parses a currency amount. ok is false when the input is empty or
// not a number.
func Amount(v any) (decimal.Decimal, bool) {
	switch a := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return a, true
	case float64:
		return decimal.NewFromFloat(a), true
	case int:
		return decimal.NewFromInt(int64(a)), true
	case int64:
		return decimal.NewFromInt(a), true
	case json.Number:
		return parseAmount(a.String())
	case string:
		return parseAmount(a)
	default:
		return decimal.Decimal{}, false
	}
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	s := amountNoise.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// FormatAmount renders the canonical ledger cell for an amount.
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}
