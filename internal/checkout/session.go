package checkout

import (
	"time"

	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/internal/promo"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/google/uuid"
)

// Contact is collected at the first step.
type Contact struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
}

// Payment tracks the current payment attempt. Card details are never kept here.
type Payment struct {
	State     enums.PaymentState  `json:"state"`
	Method    enums.PaymentMethod `json:"method,omitempty"`
	Attempt   int                 `json:"attempt"`
	Reference string              `json:"reference,omitempty"`
	Error     string              `json:"error,omitempty"`
	StartedAt *time.Time          `json:"startedAt,omitempty"`
}

// Session is the ephemeral wizard state. CheckoutID names the current pass
// through the wizard and is the order's idempotency key; it changes on every
// reset while ID stays stable.
type Session struct {
	ID            uuid.UUID           `json:"id"`
	CheckoutID    uuid.UUID           `json:"checkoutId"`
	UserID        string              `json:"userId"`
	Step          enums.CheckoutStep  `json:"step"`
	Contact       Contact             `json:"contact"`
	Address       string              `json:"address"`
	Delivery      delivery.Selection  `json:"delivery"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Promo         *promo.Application  `json:"promo,omitempty"`
	Payment       Payment             `json:"payment"`
	OrderID       *uuid.UUID          `json:"orderId,omitempty"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func newSession(userID string, prefill Contact, now time.Time) *Session {
	id := uuid.New()
	return &Session{
		ID:         id,
		CheckoutID: id,
		UserID:     userID,
		Step:       enums.CheckoutStepContact,
		Contact: Contact{
			FullName: prefill.FullName,
			Phone:    FormatPhone(prefill.Phone),
		},
		Delivery:      delivery.Selection{Tier: enums.ServiceTierStandard},
		PaymentMethod: enums.PaymentMethodCash,
		Payment:       Payment{State: enums.PaymentStateIdle},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// processing reports whether a gateway round trip is in flight.
func (s *Session) processing() bool {
	return s.Payment.State == enums.PaymentStateProcessing
}

// orderKey is the id orders are deduplicated on.
func (s *Session) orderKey() uuid.UUID {
	if s.CheckoutID == uuid.Nil {
		return s.ID
	}
	return s.CheckoutID
}

// resetAfterSuccess starts a new checkout pass at step one. Contact and
// delivery are kept as prefill.
func (s *Session) resetAfterSuccess(now time.Time) {
	s.CheckoutID = uuid.New()
	s.Step = enums.CheckoutStepContact
	s.Promo = nil
	s.Payment = Payment{State: enums.PaymentStateIdle}
	s.PaymentMethod = enums.PaymentMethodCash
	s.OrderID = nil
	s.CompletedAt = nil
	s.UpdatedAt = now
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Promo != nil {
		p := *s.Promo
		out.Promo = &p
	}
	if s.OrderID != nil {
		id := *s.OrderID
		out.OrderID = &id
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	if s.Payment.StartedAt != nil {
		at := *s.Payment.StartedAt
		out.Payment.StartedAt = &at
	}
	return &out
}
