// Package delivery holds the static region by service tier rate table.
package delivery

import (
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Rate is the promised lead time and fee for one region/tier pair.
type Rate struct {
	LeadTime string `json:"leadTime"`
	Fee      int64  `json:"fee"`
}

// DefaultRate applies whenever a region is unselected or a pair is not in the table.
var DefaultRate = Rate{LeadTime: "2-3 days", Fee: 25000}

type rateKey struct {
	region enums.Region
	tier   enums.ServiceTier
}

// Table resolves delivery rates. It never fails: unknown input degrades to the fallback.
type Table struct {
	rates    map[rateKey]Rate
	fallback Rate
}

// Quote is one tier offer for a region, used to render the delivery step.
type Quote struct {
	Tier enums.ServiceTier `json:"tier"`
	Rate
}

var (
	express   = enums.ServiceTierExpress
	standard  = enums.ServiceTierStandard
	economy   = enums.ServiceTierEconomy
	valleyFee = map[enums.ServiceTier]Rate{
		express:  {LeadTime: "2 days", Fee: 70000},
		standard: {LeadTime: "3-4 days", Fee: 40000},
		economy:  {LeadTime: "5-7 days", Fee: 30000},
	}
	remoteFee = map[enums.ServiceTier]Rate{
		standard: {LeadTime: "4-6 days", Fee: 45000},
	}
)

// NewTable returns the storefront's rate table.
func NewTable() *Table {
	t := &Table{rates: map[rateKey]Rate{}, fallback: DefaultRate}

	t.set(enums.RegionTashkent, express, Rate{LeadTime: "1 day", Fee: 50000})
	t.set(enums.RegionTashkent, standard, Rate{LeadTime: "1-2 days", Fee: 30000})
	t.set(enums.RegionTashkent, economy, Rate{LeadTime: "2-3 days", Fee: 20000})
	t.set(enums.RegionTashkentReg, express, Rate{LeadTime: "1-2 days", Fee: 60000})
	t.set(enums.RegionTashkentReg, standard, Rate{LeadTime: "2-3 days", Fee: 35000})

	for _, region := range []enums.Region{
		enums.RegionSamarkand,
		enums.RegionBukhara,
		enums.RegionAndijan,
		enums.RegionFergana,
		enums.RegionNamangan,
	} {
		for tier, rate := range valleyFee {
			t.set(region, tier, rate)
		}
	}
	for _, region := range []enums.Region{
		enums.RegionKhorezm,
		enums.RegionNavoi,
		enums.RegionKashkadarya,
		enums.RegionSurkhandar,
		enums.RegionKarakalpak,
	} {
		for tier, rate := range remoteFee {
			t.set(region, tier, rate)
		}
	}
	return t
}

// NewTableFrom builds a table from explicit entries. Used by tests and overrides.
func NewTableFrom(fallback Rate, entries map[enums.Region]map[enums.ServiceTier]Rate) *Table {
	t := &Table{rates: map[rateKey]Rate{}, fallback: fallback}
	for region, tiers := range entries {
		for tier, rate := range tiers {
			t.set(region, tier, rate)
		}
	}
	return t
}

func (t *Table) set(region enums.Region, tier enums.ServiceTier, rate Rate) {
	t.rates[rateKey{region: region, tier: tier}] = rate
}

// Rate returns the rate for the pair, or the fallback when the region is empty or the pair is absent.
func (t *Table) Rate(region enums.Region, tier enums.ServiceTier) Rate {
	if t == nil {
		return DefaultRate
	}
	if region == "" {
		return t.fallback
	}
	if tier == "" {
		tier = enums.ServiceTierStandard
	}
	if rate, ok := t.rates[rateKey{region: region, tier: tier}]; ok {
		return rate
	}
	return t.fallback
}

// Quotes lists the rate of every tier for region, fastest tier first.
func (t *Table) Quotes(region enums.Region) []Quote {
	tiers := enums.ServiceTiers()
	quotes := make([]Quote, 0, len(tiers))
	for _, tier := range tiers {
		quotes = append(quotes, Quote{Tier: tier, Rate: t.Rate(region, tier)})
	}
	return quotes
}

// Selection is the region and tier chosen at the delivery step.
type Selection struct {
	Region enums.Region      `json:"region"`
	Tier   enums.ServiceTier `json:"serviceTier"`
}

// Normalized returns the selection with an empty tier defaulted to standard.
func (s Selection) Normalized() Selection {
	if s.Tier == "" {
		s.Tier = enums.ServiceTierStandard
	}
	return s
}
