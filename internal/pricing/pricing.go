// Package pricing composes a checkout price: subtotal, promo discount, delivery fee, grand total.
package pricing

import (
	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/internal/promo"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/money"
)

// Line is the priced part of a cart line.
type Line struct {
	UnitPrice int64
	Quantity  int
}

// Total returns unit price times quantity, treating negative inputs as zero.
func (l Line) Total() int64 {
	if l.UnitPrice <= 0 || l.Quantity <= 0 {
		return 0
	}
	return l.UnitPrice * int64(l.Quantity)
}

// RateSource resolves delivery rates.
type RateSource interface {
	Rate(region enums.Region, tier enums.ServiceTier) delivery.Rate
}

// Breakdown is derived on every input change and never stored on its own.
type Breakdown struct {
	Subtotal             int64             `json:"subtotal"`
	PromoCode            string            `json:"promoCode,omitempty"`
	DiscountPercent      int               `json:"discountPercent"`
	PromoDiscountAmount  int64             `json:"promoDiscountAmount"`
	PostDiscountSubtotal int64             `json:"postDiscountSubtotal"`
	Region               enums.Region      `json:"region,omitempty"`
	ServiceTier          enums.ServiceTier `json:"serviceTier"`
	LeadTime             string            `json:"leadTime"`
	DeliveryFee          int64             `json:"deliveryFee"`
	GrandTotal           int64             `json:"grandTotal"`
}

// Compute prices lines with an optional promo and the delivery selection. It has no side effects.
func Compute(lines []Line, applied *promo.Application, selection delivery.Selection, rates RateSource) Breakdown {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.Total()
	}

	b := Breakdown{Subtotal: subtotal}
	if applied != nil {
		b.PromoCode = applied.Code
		b.DiscountPercent = clampPercent(applied.DiscountPercent)
	}
	b.PromoDiscountAmount = money.PercentOf(subtotal, b.DiscountPercent)
	b.PostDiscountSubtotal = subtotal - b.PromoDiscountAmount

	selection = selection.Normalized()
	rate := delivery.DefaultRate
	if rates != nil {
		rate = rates.Rate(selection.Region, selection.Tier)
	}
	b.Region = selection.Region
	b.ServiceTier = selection.Tier
	b.LeadTime = rate.LeadTime
	b.DeliveryFee = rate.Fee
	b.GrandTotal = b.PostDiscountSubtotal + b.DeliveryFee
	return b
}

func clampPercent(pct int) int {
	switch {
	case pct < 0:
		return 0
	case pct > promo.MaxDiscountPercent:
		return promo.MaxDiscountPercent
	default:
		return pct
	}
}
