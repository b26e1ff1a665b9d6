package normalize

import "strings"

const (
	countryCode = "81"
	trunkPrefix = "0"
)

// Phone reduces a phone number to domestic digits. International numbers
// carrying the country code are rewritten with the trunk prefix and
// 10-digit mobile numbers missing the trunk prefix get it back. Applying
// Phone twice yields the same value.
func Phone(raw string) string {
	digits := Digits(raw)
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, countryCode) && (len(digits) == 11 || len(digits) == 12):
		return trunkPrefix + digits[len(countryCode):]
	case len(digits) == 10 && strings.ContainsRune("789", rune(digits[0])):
		return trunkPrefix + digits
	default:
		return digits
	}
}

// SamePhone reports whether two inputs normalize to the same number.
func SamePhone(a, b string) bool {
	na := Phone(a)
	return na != "" && na == Phone(b)
}

// Digits drops every non-ASCII-digit rune. Full-width digits are folded first.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '０' && r <= '９' {
			r = '0' + (r - '０')
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PostalCode formats 7-digit postal codes as NNN-NNNN; anything else is
// returned trimmed.
func PostalCode(raw string) string {
	digits := Digits(raw)
	if len(digits) == 7 {
		return digits[:3] + "-" + digits[3:]
	}
	return strings.TrimSpace(raw)
}
