package payments

import (
	"strings"
	"unicode"
)

const (
	cardNumberDigits = 16
	expiryDigits     = 4
	cvvDigits        = 3
)

// FormatCardNumber keeps up to 16 digits and groups them in fours.
func FormatCardNumber(raw string) string {
	digits := keepDigits(raw, cardNumberDigits)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatHolder upper-cases the card holder name.
func FormatHolder(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

// FormatExpiry renders up to four digits as MM/YY.
func FormatExpiry(raw string) string {
	digits := keepDigits(raw, expiryDigits)
	if len(digits) <= 2 {
		return digits
	}
	return digits[:2] + "/" + digits[2:]
}

// FormatCVV keeps up to three digits.
func FormatCVV(raw string) string {
	return keepDigits(raw, cvvDigits)
}

func keepDigits(raw string, max int) string {
	var b strings.Builder
	n := 0
	for _, r := range raw {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			continue
		}
		if n == max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func lastFour(number string) string {
	digits := keepDigits(number, cardNumberDigits)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
