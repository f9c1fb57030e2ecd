package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

func TestDeliveryRatesForRegion(t *testing.T) {
	rec := httptest.NewRecorder()
	DeliveryRates(delivery.NewTable(), nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/delivery/rates?region=Tashkent", nil, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp deliveryRatesResponse
	decodeData(t, rec, &resp)
	if resp.Region != enums.RegionTashkent {
		t.Fatalf("unexpected region %q", resp.Region)
	}
	found := false
	for _, q := range resp.Quotes {
		if q.Tier == enums.ServiceTierExpress {
			found = true
			if q.Fee != 50000 || q.LeadTime != "1 day" {
				t.Fatalf("unexpected express quote %+v", q)
			}
		}
	}
	if !found {
		t.Fatalf("express tier missing from %+v", resp.Quotes)
	}
}

func TestDeliveryRatesWithoutRegionUsesFallback(t *testing.T) {
	rec := httptest.NewRecorder()
	DeliveryRates(delivery.NewTable(), nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/delivery/rates", nil, ""))

	var resp deliveryRatesResponse
	decodeData(t, rec, &resp)
	for _, q := range resp.Quotes {
		if q.Rate != delivery.DefaultRate {
			t.Fatalf("expected fallback rate, got %+v", q)
		}
	}
	if len(resp.Regions) != len(enums.Regions()) || resp.Regions[0] != enums.Regions()[0] {
		t.Fatalf("expected every selectable region, got %v", resp.Regions)
	}
}

func TestDeliveryRatesUnknownRegion(t *testing.T) {
	rec := httptest.NewRecorder()
	DeliveryRates(delivery.NewTable(), nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/delivery/rates?region=atlantis", nil, ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
