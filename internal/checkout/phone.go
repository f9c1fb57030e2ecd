package checkout

import (
	"strings"
	"unicode"
)

// PhonePrefix is the fixed country prefix every contact phone is rendered with.
const PhonePrefix = "+998 "

const (
	countryCode    = "998"
	nationalDigits = 9
)

// NationalDigits extracts the subscriber digits from raw input, dropping the
// country code when present and capping at nine digits.
func NationalDigits(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range trimmed {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	all := digits.String()
	if strings.HasPrefix(trimmed, "+"+countryCode) || (len(all) > nationalDigits && strings.HasPrefix(all, countryCode)) {
		all = strings.TrimPrefix(all, countryCode)
	}
	if len(all) > nationalDigits {
		all = all[:nationalDigits]
	}
	return all
}

// FormatPhone renders raw input as "+998 XX XXX XX XX". The prefix is always present.
func FormatPhone(raw string) string {
	digits := NationalDigits(raw)
	groups := []int{2, 3, 2, 2}
	var b strings.Builder
	b.WriteString(PhonePrefix)
	pos := 0
	for i, size := range groups {
		if pos >= len(digits) {
			break
		}
		end := pos + size
		if end > len(digits) {
			end = len(digits)
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[pos:end])
		pos = end
	}
	return b.String()
}

// IsBarePrefix reports whether raw carries no subscriber digits.
func IsBarePrefix(raw string) bool {
	return NationalDigits(raw) == ""
}
