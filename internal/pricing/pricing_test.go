package pricing

import (
	"testing"

	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/internal/promo"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

var tashkentExpress = delivery.Selection{Region: enums.RegionTashkent, Tier: enums.ServiceTierExpress}

func TestComputeChegirma30(t *testing.T) {
	applied, err := promo.NewDefaultRegistry().Resolve("chegirma30")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b := Compute([]Line{{UnitPrice: 50000, Quantity: 2}}, &applied, tashkentExpress, delivery.NewTable())

	if b.Subtotal != 100000 {
		t.Fatalf("expected subtotal 100000, got %d", b.Subtotal)
	}
	if b.PromoDiscountAmount != 30000 {
		t.Fatalf("expected discount 30000, got %d", b.PromoDiscountAmount)
	}
	if b.PostDiscountSubtotal != 70000 {
		t.Fatalf("expected post-discount 70000, got %d", b.PostDiscountSubtotal)
	}
	if b.DeliveryFee != 50000 || b.LeadTime != "1 day" {
		t.Fatalf("unexpected delivery %d %q", b.DeliveryFee, b.LeadTime)
	}
	if b.GrandTotal != 120000 {
		t.Fatalf("expected grand total 120000, got %d", b.GrandTotal)
	}
}

func TestComputeFloorsDiscount(t *testing.T) {
	applied := promo.Application{Code: "X", DiscountPercent: 15}
	b := Compute([]Line{{UnitPrice: 33333, Quantity: 1}}, &applied, delivery.Selection{}, delivery.NewTable())
	// 33333 * 15 / 100 = 4999.95
	if b.PromoDiscountAmount != 4999 {
		t.Fatalf("expected floored discount 4999, got %d", b.PromoDiscountAmount)
	}
	if b.DeliveryFee != delivery.DefaultRate.Fee {
		t.Fatalf("expected default fee without a region, got %d", b.DeliveryFee)
	}
	if b.ServiceTier != enums.ServiceTierStandard {
		t.Fatalf("expected standard tier default, got %q", b.ServiceTier)
	}
}

func TestComputeIdentitiesHoldAcrossInputs(t *testing.T) {
	table := delivery.NewTable()
	carts := [][]Line{
		nil,
		{{UnitPrice: 0, Quantity: 3}},
		{{UnitPrice: 1, Quantity: 1}},
		{{UnitPrice: 19999, Quantity: 3}, {UnitPrice: 125000, Quantity: 1}},
		{{UnitPrice: 7, Quantity: 13}, {UnitPrice: 999999, Quantity: 7}},
	}
	for _, lines := range carts {
		for _, pct := range []int{0, 1, 10, 15, 30, 33, 99, 100} {
			for _, region := range append(enums.Regions(), "") {
				for _, tier := range enums.ServiceTiers() {
					applied := promo.Application{Code: "P", DiscountPercent: pct}
					b := Compute(lines, &applied, delivery.Selection{Region: region, Tier: tier}, table)
					if b.GrandTotal != b.PostDiscountSubtotal+b.DeliveryFee {
						t.Fatalf("grand total identity broken: %+v", b)
					}
					if b.PostDiscountSubtotal != b.Subtotal-(b.Subtotal*int64(pct)/100) {
						t.Fatalf("post-discount identity broken: %+v", b)
					}
					if b.GrandTotal < 0 {
						t.Fatalf("negative grand total: %+v", b)
					}
				}
			}
		}
	}
}

func TestComputeWithoutPromo(t *testing.T) {
	b := Compute([]Line{{UnitPrice: 1000, Quantity: 2}}, nil, tashkentExpress, delivery.NewTable())
	if b.DiscountPercent != 0 || b.PromoDiscountAmount != 0 || b.PromoCode != "" {
		t.Fatalf("expected no discount, got %+v", b)
	}
	if b.PostDiscountSubtotal != 2000 {
		t.Fatalf("unexpected post-discount %d", b.PostDiscountSubtotal)
	}
}

func TestComputeClampsPercent(t *testing.T) {
	over := promo.Application{Code: "OVER", DiscountPercent: 150}
	b := Compute([]Line{{UnitPrice: 1000, Quantity: 1}}, &over, tashkentExpress, nil)
	if b.PostDiscountSubtotal != 0 || b.DiscountPercent != 100 {
		t.Fatalf("expected full discount clamp, got %+v", b)
	}
	if b.DeliveryFee != delivery.DefaultRate.Fee {
		t.Fatalf("nil rate source should use default fee, got %d", b.DeliveryFee)
	}
	under := promo.Application{Code: "UNDER", DiscountPercent: -5}
	if got := Compute([]Line{{UnitPrice: 1000, Quantity: 1}}, &under, tashkentExpress, nil); got.PromoDiscountAmount != 0 {
		t.Fatalf("negative percent should not discount, got %+v", got)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	lines := []Line{{UnitPrice: 12345, Quantity: 4}}
	applied := promo.Application{Code: "YANGI10", DiscountPercent: 10}
	first := Compute(lines, &applied, tashkentExpress, delivery.NewTable())
	second := Compute(lines, &applied, tashkentExpress, delivery.NewTable())
	if first != second {
		t.Fatalf("expected identical breakdowns, got %+v and %+v", first, second)
	}
}
