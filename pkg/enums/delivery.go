package enums

import (
	"fmt"
	"strings"
)

// ServiceTier is the delivery speed chosen at step two.
type ServiceTier string

const (
	ServiceTierExpress  ServiceTier = "express"
	ServiceTierStandard ServiceTier = "standard"
	ServiceTierEconomy  ServiceTier = "economy"
)

var validServiceTiers = []ServiceTier{
	ServiceTierExpress,
	ServiceTierStandard,
	ServiceTierEconomy,
}

// ServiceTiers returns the supported tiers, fastest first.
func ServiceTiers() []ServiceTier {
	out := make([]ServiceTier, len(validServiceTiers))
	copy(out, validServiceTiers)
	return out
}

func (t ServiceTier) IsValid() bool {
	for _, candidate := range validServiceTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseServiceTier converts raw input into a ServiceTier. Empty input yields standard.
func ParseServiceTier(value string) (ServiceTier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceTierStandard, nil
	}
	for _, candidate := range validServiceTiers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service tier %q", value)
}

// Region identifies a delivery destination.
type Region string

const (
	RegionTashkent    Region = "tashkent"
	RegionTashkentReg Region = "tashkent_region"
	RegionSamarkand   Region = "samarkand"
	RegionBukhara     Region = "bukhara"
	RegionAndijan     Region = "andijan"
	RegionFergana     Region = "fergana"
	RegionNamangan    Region = "namangan"
	RegionKhorezm     Region = "khorezm"
	RegionNavoi       Region = "navoi"
	RegionKashkadarya Region = "kashkadarya"
	RegionSurkhandar  Region = "surkhandarya"
	RegionJizzakh     Region = "jizzakh"
	RegionSyrdarya    Region = "syrdarya"
	RegionKarakalpak  Region = "karakalpakstan"
)

var validRegions = []Region{
	RegionTashkent,
	RegionTashkentReg,
	RegionSamarkand,
	RegionBukhara,
	RegionAndijan,
	RegionFergana,
	RegionNamangan,
	RegionKhorezm,
	RegionNavoi,
	RegionKashkadarya,
	RegionSurkhandar,
	RegionJizzakh,
	RegionSyrdarya,
	RegionKarakalpak,
}

// Regions returns every supported region in display order.
func Regions() []Region {
	out := make([]Region, len(validRegions))
	copy(out, validRegions)
	return out
}

func (r Region) IsValid() bool {
	for _, candidate := range validRegions {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRegion converts raw input into a Region.
func ParseRegion(value string) (Region, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRegions {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid region %q", value)
}
