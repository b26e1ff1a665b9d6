package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/angelmondragon/clinicops-backend/pkg/enums"
)

var upuJapanRe = regexp.MustCompile(`^[A-Z]{2}\d{9}JP$`)

// TrackingNumber removes separators and upper-cases letters.
func TrackingNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '０' && r <= '９' {
			r = '0' + (r - '０')
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// InferCarrier classifies a tracking number by its shape.
func InferCarrier(tracking string) enums.Carrier {
	cleaned := TrackingNumber(tracking)
	if cleaned == "" {
		return enums.CarrierNone
	}
	if upuJapanRe.MatchString(cleaned) {
		return enums.CarrierJapanPost
	}
	if Digits(cleaned) != cleaned {
		return enums.CarrierNone
	}
	switch len(cleaned) {
	case 12:
		return enums.CarrierYamato
	case 11:
		return enums.CarrierJapanPost
	case 10:
		return enums.CarrierSagawa
	default:
		return enums.CarrierNone
	}
}
