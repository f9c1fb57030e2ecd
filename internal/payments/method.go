package payments

import (
	"context"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// Method is one payment variant.
type Method interface {
	Kind() enums.PaymentMethod
	Label() string
	Validate() error
}

// gatewayMethod is a Method that settles through the dispatcher's gateway.
// Cash does not implement it.
type gatewayMethod interface {
	Method
	dispatch(ctx context.Context, d *Dispatcher, charge Charge, onComplete CompletionFunc) (*Task, error)
}

// CardDetails is the raw card form. It is formatted on construction and never persisted.
type CardDetails struct {
	Number string `json:"number"`
	Holder string `json:"holder"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

// Cash settles on delivery; there is no gateway step.
type Cash struct{}

func (Cash) Kind() enums.PaymentMethod { return enums.PaymentMethodCash }
func (Cash) Label() string { return enums.PaymentMethodCash.Label() }
func (Cash) Validate() error { return nil }

// Card requires all four card fields before a gateway round trip.
type Card struct {
	number string
	holder string
	expiry string
	cvv    string
}

// NewCard formats raw card input.
func NewCard(details CardDetails) Card {
	return Card{
		number: FormatCardNumber(details.Number),
		holder: FormatHolder(details.Holder),
		expiry: FormatExpiry(details.Expiry),
		cvv:    FormatCVV(details.CVV),
	}
}

func (Card) Kind() enums.PaymentMethod { return enums.PaymentMethodCard }
func (Card) Label() string { return enums.PaymentMethodCard.Label() }

// Number returns the grouped card number.
func (c Card) Number() string { return c.number }

// Holder returns the upper-cased holder name.
func (c Card) Holder() string { return c.holder }

// Expiry returns the MM/YY expiry.
func (c Card) Expiry() string { return c.expiry }

// Masked returns the number with everything but the last four digits hidden.
func (c Card) Masked() string {
	if c.number == "" {
		return ""
	}
	return "**** " + lastFour(c.number)
}

// Validate checks presence only. No checksum is applied.
func (c Card) Validate() error {
	var violations []pkgerrors.FieldViolation
	if c.number == "" {
		violations = append(violations, pkgerrors.FieldViolation{Field: "card.number", Reason: "required"})
	}
	if c.holder == "" {
		violations = append(violations, pkgerrors.FieldViolation{Field: "card.holder", Reason: "required"})
	}
	if c.expiry == "" {
		violations = append(violations, pkgerrors.FieldViolation{Field: "card.expiry", Reason: "required"})
	}
	if c.cvv == "" {
		violations = append(violations, pkgerrors.FieldViolation{Field: "card.cvv", Reason: "required"})
	}
	if len(violations) > 0 {
		return pkgerrors.Validation("card details are incomplete", violations...)
	}
	return nil
}

func (c Card) dispatch(ctx context.Context, d *Dispatcher, charge Charge, onComplete CompletionFunc) (*Task, error) {
	charge.Hint = c.Masked()
	return d.settleAsync(ctx, c, charge, onComplete)
}

// Wallet covers the redirect wallets (Click, Payme). No extra fields are collected.
type Wallet struct {
	kind enums.PaymentMethod
}

// Click returns the Click wallet variant.
func Click() Wallet { return Wallet{kind: enums.PaymentMethodClick} }

// Payme returns the Payme wallet variant.
func Payme() Wallet { return Wallet{kind: enums.PaymentMethodPayme} }

func (w Wallet) Kind() enums.PaymentMethod { return w.kind }
func (w Wallet) Label() string { return w.kind.Label() }

func (w Wallet) Validate() error {
	if w.kind != enums.PaymentMethodClick && w.kind != enums.PaymentMethodPayme {
		return pkgerrors.Validation("unsupported wallet", pkgerrors.FieldViolation{Field: "method", Reason: "unsupported"})
	}
	return nil
}

func (w Wallet) dispatch(ctx context.Context, d *Dispatcher, charge Charge, onComplete CompletionFunc) (*Task, error) {
	return d.settleAsync(ctx, w, charge, onComplete)
}

// MethodFor builds the variant for an already parsed kind.
func MethodFor(kind enums.PaymentMethod, card *CardDetails) (Method, error) {
	switch kind {
	case enums.PaymentMethodCash:
		return Cash{}, nil
	case enums.PaymentMethodCard:
		if card == nil {
			return Card{}, nil
		}
		return NewCard(*card), nil
	case enums.PaymentMethodClick:
		return Click(), nil
	case enums.PaymentMethodPayme:
		return Payme(), nil
	default:
		return nil, pkgerrors.Validation("unsupported payment method",
			pkgerrors.FieldViolation{Field: "method", Reason: "unsupported"})
	}
}

// IsCash reports whether m settles on delivery, without the gateway.
func IsCash(m Method) bool {
	if m == nil {
		return false
	}
	_, viaGateway := m.(gatewayMethod)
	return !viaGateway
}
