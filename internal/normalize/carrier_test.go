package normalize

import (
	"testing"

	"github.com/angelmondragon/clinicops-backend/pkg/enums"
)

func TestInferCarrier(t *testing.T) {
	tests := []struct {
		in   string
		want enums.Carrier
	}{
		{in: "1234-5678-9012", want: enums.CarrierYamato},
		{in: "123456789012", want: enums.CarrierYamato},
		{in: "12345678901", want: enums.CarrierJapanPost},
		{in: "ab123456789jp", want: enums.CarrierJapanPost},
		{in: "1234567890", want: enums.CarrierSagawa},
		{in: "123", want: enums.CarrierNone},
		{in: "1234567890123", want: enums.CarrierNone},
		{in: "ABC1234567", want: enums.CarrierNone},
		{in: "", want: enums.CarrierNone},
	}
	for _, tt := range tests {
		if got := InferCarrier(tt.in); got != tt.want {
			t.Fatalf("InferCarrier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrackingNumberStripsSeparators(t *testing.T) {
	if got := TrackingNumber(" 1234 5678-9012 "); got != "123456789012" {
		t.Fatalf("unexpected tracking %q", got)
	}
}
