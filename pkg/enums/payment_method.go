package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how a buyer settles a checkout.
type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodClick PaymentMethod = "click"
	PaymentMethodPayme PaymentMethod = "payme"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodClick,
	PaymentMethodPayme,
}

var paymentMethodLabels = map[PaymentMethod]string{
	PaymentMethodCash:  "Naqd pul",
	PaymentMethodCard:  "Bank kartasi",
	PaymentMethodClick: "Click",
	PaymentMethodPayme: "Payme",
}

func (m PaymentMethod) String() string {
	return string(m)
}

// Label returns the operator-facing name used in notifications.
func (m PaymentMethod) Label() string {
	if label, ok := paymentMethodLabels[m]; ok {
		return label
	}
	return string(m)
}

// IsValid reports whether the value is a supported payment method.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Matching is case-insensitive.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
