package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type rateQuoter interface {
	Quotes(region enums.Region) []delivery.Quote
}

type deliveryRatesResponse struct {
	Region  enums.Region     `json:"region,omitempty"`
	Quotes  []delivery.Quote `json:"quotes"`
	Regions []enums.Region   `json:"regions"`
}

// DeliveryRates lists every tier offer for ?region=. An empty region returns the fallback rates.
// The selectable regions are always included.
func DeliveryRates(rates rateQuoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var region enums.Region
		if raw := strings.TrimSpace(r.URL.Query().Get("region")); raw != "" {
			parsed, err := enums.ParseRegion(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Validation("unsupported region",
					pkgerrors.FieldViolation{Field: "region", Reason: "unsupported"}))
				return
			}
			region = parsed
		}
		responses.WriteSuccess(w, deliveryRatesResponse{
			Region:  region,
			Quotes:  rates.Quotes(region),
			Regions: enums.Regions(),
		})
	}
}
