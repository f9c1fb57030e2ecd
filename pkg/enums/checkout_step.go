package enums

import "fmt"

// CheckoutStep is the wizard position of a checkout session.
type CheckoutStep int

const (
	CheckoutStepContact  CheckoutStep = 1
	CheckoutStepDelivery CheckoutStep = 2
	CheckoutStepPayment  CheckoutStep = 3
	CheckoutStepSuccess  CheckoutStep = 4
)

var checkoutStepNames = map[CheckoutStep]string{
	CheckoutStepContact:  "contact",
	CheckoutStepDelivery: "delivery",
	CheckoutStepPayment:  "payment",
	CheckoutStepSuccess:  "success",
}

func (s CheckoutStep) String() string {
	if name, ok := checkoutStepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// IsValid reports whether the value is one of the four wizard steps.
func (s CheckoutStep) IsValid() bool {
	_, ok := checkoutStepNames[s]
	return ok
}
