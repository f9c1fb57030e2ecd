package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	"github.com/angelmondragon/storefront-checkout/internal/checkout"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/pricing"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// CheckoutFlow is the checkout state machine surface served over HTTP.
type CheckoutFlow interface {
	Open(ctx context.Context, userID string, prefill checkout.Contact) (*checkout.View, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*checkout.View, error)
	Quote(ctx context.Context, userID string, id uuid.UUID) (pricing.Breakdown, error)
	SubmitContact(ctx context.Context, userID string, id uuid.UUID, contact checkout.Contact) (*checkout.View, error)
	SubmitDelivery(ctx context.Context, userID string, id uuid.UUID, input checkout.DeliveryInput) (*checkout.View, error)
	Back(ctx context.Context, userID string, id uuid.UUID) (*checkout.View, error)
	ApplyPromo(ctx context.Context, userID string, id uuid.UUID, code string) (*checkout.View, error)
	RemovePromo(ctx context.Context, userID string, id uuid.UUID) (*checkout.View, error)
	SelectPayment(ctx context.Context, userID string, id uuid.UUID, method string) (*checkout.View, error)
	Submit(ctx context.Context, userID string, id uuid.UUID, input checkout.SubmitInput) (*checkout.View, error)
	Cancel(ctx context.Context, userID string, id uuid.UUID) error
}

type sessionAction func(ctx context.Context, userID string, id uuid.UUID, r *http.Request) (*checkout.View, error)

// sessionHandler resolves the user and session id, then runs action and writes the view.
func sessionHandler(logg *logger.Logger, action sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuidParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, sessionID.String())
		}
		view, err := action(ctx, userID, sessionID, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, viewStatus(view), view)
	}
}

// viewStatus answers 202 while a gateway payment is still in flight.
func viewStatus(view *checkout.View) int {
	if view != nil && view.Session != nil && view.Session.Payment.State == enums.PaymentStateProcessing {
		return http.StatusAccepted
	}
	return http.StatusOK
}

type contactRequest struct {
	FullName string `json:"fullName" validate:"max=120"`
	Phone    string `json:"phone" validate:"max=32"`
}

func (c contactRequest) contact() checkout.Contact {
	return checkout.Contact{FullName: validators.SanitizeString(c.FullName, 120), Phone: c.Phone}
}

// CheckoutOpen starts a new session for a non-empty cart. Contact fields are optional prefill.
func CheckoutOpen(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload contactRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		view, err := flow.Open(r.Context(), userID, payload.contact())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// CheckoutGet returns the session view. Polling it observes payment completion.
func CheckoutGet(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, _ *http.Request) (*checkout.View, error) {
		return flow.Get(ctx, userID, id)
	})
}

// CheckoutQuote returns only the live price breakdown.
func CheckoutQuote(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuidParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := flow.Quote(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// CheckoutContact submits step one.
func CheckoutContact(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, r *http.Request) (*checkout.View, error) {
		var payload contactRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return flow.SubmitContact(ctx, userID, id, payload.contact())
	})
}

type deliveryRequest struct {
	Region      string `json:"region" validate:"max=64"`
	ServiceTier string `json:"serviceTier" validate:"max=32"`
	Address     string `json:"address" validate:"max=500"`
}

// CheckoutDelivery submits step two.
func CheckoutDelivery(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, r *http.Request) (*checkout.View, error) {
		var payload deliveryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return flow.SubmitDelivery(ctx, userID, id, checkout.DeliveryInput{
			Region:      payload.Region,
			ServiceTier: payload.ServiceTier,
			Address:     validators.SanitizeString(payload.Address, 500),
		})
	})
}

// CheckoutBack returns to the previous step.
func CheckoutBack(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, _ *http.Request) (*checkout.View, error) {
		return flow.Back(ctx, userID, id)
	})
}

type promoRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

// CheckoutApplyPromo replaces the active promo code.
func CheckoutApplyPromo(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, r *http.Request) (*checkout.View, error) {
		var payload promoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return flow.ApplyPromo(ctx, userID, id, payload.Code)
	})
}

// CheckoutRemovePromo clears the active promo code.
func CheckoutRemovePromo(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, _ *http.Request) (*checkout.View, error) {
		return flow.RemovePromo(ctx, userID, id)
	})
}

type paymentMethodRequest struct {
	Method string `json:"method" validate:"required,max=16"`
}

// CheckoutPaymentMethod selects the method used by submit.
func CheckoutPaymentMethod(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, r *http.Request) (*checkout.View, error) {
		var payload paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return flow.SelectPayment(ctx, userID, id, payload.Method)
	})
}

type cardRequest struct {
	Number string `json:"number" validate:"max=32"`
	Holder string `json:"holder" validate:"max=120"`
	Expiry string `json:"expiry" validate:"max=8"`
	CVV    string `json:"cvv" validate:"max=4"`
}

type submitRequest struct {
	Method string       `json:"method" validate:"max=16"`
	Card   *cardRequest `json:"card,omitempty"`
}

// CheckoutSubmit confirms step three. Cash answers 200 at the success step;
// gateway methods answer 202 while processing.
func CheckoutSubmit(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(logg, func(ctx context.Context, userID string, id uuid.UUID, r *http.Request) (*checkout.View, error) {
		var payload submitRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		input := checkout.SubmitInput{Method: payload.Method}
		if payload.Card != nil {
			input.Card = &payments.CardDetails{
				Number: payload.Card.Number,
				Holder: payload.Card.Holder,
				Expiry: payload.Card.Expiry,
				CVV:    payload.Card.CVV,
			}
		}
		return flow.Submit(ctx, userID, id, input)
	})
}

// CheckoutCancel discards the session and aborts any in-flight payment.
func CheckoutCancel(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuidParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := flow.Cancel(r.Context(), userID, sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
